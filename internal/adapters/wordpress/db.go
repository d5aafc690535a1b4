// Package wordpress reads WooCommerce Subscriptions data straight from the WordPress MySQL database.
package wordpress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kevin07696/subscription-migrator/pkg/resilience"
)

const (
	connectAttempts = 5
	connectDelay    = 5 * time.Second
)

// Config describes the WordPress database connection
type Config struct {
	// Example: "wp:secret@tcp(127.0.0.1:3306)/wordpress?charset=utf8mb4"
	DSN             string
	TablePrefix     string
	ConnMaxLifetime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	Debug           bool
}

// Open connects to the WordPress database, retrying while MySQL is still coming up
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	logMode := gormlogger.Silent
	if cfg.Debug {
		logMode = gormlogger.Info
	}

	var db *gorm.DB
	err := resilience.Retry(ctx, connectAttempts, &resilience.FixedBackoff{Delay: connectDelay}, nil, func(ctx context.Context) error {
		var err error
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       cfg.DSN,
			DefaultStringSize:         256,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			Logger:                 gormlogger.Default.LogMode(logMode),
			SkipDefaultTransaction: true,
		})
		if err != nil {
			logger.Warn("Failed to connect to WordPress database, retrying", zap.Error(err))
			return err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to wordpress database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access wordpress connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Info("WordPress database connected", zap.String("table_prefix", cfg.TablePrefix))
	return db, nil
}
