package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kevin07696/subscription-migrator/internal/adapters/postgres"
	"github.com/kevin07696/subscription-migrator/internal/adapters/redisqueue"
	"github.com/kevin07696/subscription-migrator/internal/adapters/redisstore"
	"github.com/kevin07696/subscription-migrator/internal/adapters/s3archive"
	"github.com/kevin07696/subscription-migrator/internal/adapters/secrets"
	"github.com/kevin07696/subscription-migrator/internal/adapters/wordpress"
	"github.com/kevin07696/subscription-migrator/internal/config"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/internal/services/cleanup"
	"github.com/kevin07696/subscription-migrator/internal/services/discovery"
	"github.com/kevin07696/subscription-migrator/internal/services/gateway"
	"github.com/kevin07696/subscription-migrator/internal/services/orchestrator"
	"github.com/kevin07696/subscription-migrator/internal/services/products"
	"github.com/kevin07696/subscription-migrator/internal/services/renewal"
	"github.com/kevin07696/subscription-migrator/internal/services/state"
	"github.com/kevin07696/subscription-migrator/internal/services/subscriptions"
	"github.com/kevin07696/subscription-migrator/pkg/logging"
	"github.com/kevin07696/subscription-migrator/pkg/observability"
	"github.com/kevin07696/subscription-migrator/pkg/resilience"
	"github.com/kevin07696/subscription-migrator/pkg/shutdown"
)

const shutdownTimeout = 30 * time.Second

// app holds every wired component of the migrator
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	shutdown     *shutdown.Manager
	pool         *pgxpool.Pool
	sourceDB     *gorm.DB
	redis        *redis.Client
	queue        *redisqueue.Queue
	store        *state.Store
	orchestrator *orchestrator.Orchestrator
	guard        *renewal.Guard
	cleanup      *cleanup.Service
	timeouts     *resilience.TimeoutConfig
}

// loadConfig reads the configuration and resolves password secrets through the configured provider
func loadConfig(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.Build(cfg.Logger.Level, cfg.Logger.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	secretManager, err := secrets.New(ctx, secrets.Config{
		Provider:  cfg.Secrets.Provider,
		EnvPrefix: cfg.Secrets.EnvPrefix,
		LocalPath: cfg.Secrets.LocalPath,
		AWS: secrets.AWSSecretsManagerConfig{
			Region:   cfg.Secrets.AWSRegion,
			Profile:  cfg.Secrets.AWSProfile,
			Endpoint: cfg.Secrets.AWSEndpoint,
		},
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.VaultAddress,
			AuthMethod: cfg.Secrets.VaultAuth,
			Token:      cfg.Secrets.VaultToken,
			RoleID:     cfg.Secrets.VaultRoleID,
			SecretID:   cfg.Secrets.VaultSecretID,
			Namespace:  cfg.Secrets.VaultNamespace,
			MountPath:  cfg.Secrets.VaultMount,
			KVVersion:  cfg.Secrets.VaultKVVersion,
		},
		CacheTTL: cfg.Secrets.CacheTTL,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize secrets provider: %w", err)
	}
	if err := cfg.ResolveSecrets(ctx, secretManager); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newApp connects to every store and builds the engine services.
// Components are registered with the shutdown manager as they come up.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		shutdown: shutdown.NewManager(logger, shutdownTimeout),
		timeouts: resilience.DefaultTimeoutConfig(),
	}
	if cfg.Worker.BatchTimeout > 0 {
		a.timeouts.BatchJob = cfg.Worker.BatchTimeout
	}

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}
	a.shutdown.Register("tracer", shutdownTracer)

	poolCfg := postgres.DefaultPoolConfig(cfg.Target.ConnectionString())
	poolCfg.MaxConns = cfg.Target.MaxConns
	poolCfg.MinConns = cfg.Target.MinConns
	a.pool, err = postgres.NewPool(ctx, poolCfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.shutdown.RegisterNoErr("target-pool", a.pool.Close)

	a.sourceDB, err = wordpress.Open(ctx, wordpress.Config{
		DSN:             cfg.Source.DSN(),
		TablePrefix:     cfg.Source.TablePrefix,
		ConnMaxLifetime: cfg.Source.ConnMaxLifetime,
		MaxOpenConns:    cfg.Source.MaxOpenConns,
		MaxIdleConns:    cfg.Source.MaxIdleConns,
		Debug:           cfg.Source.Debug,
	}, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	sqlDB, err := a.sourceDB.DB()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("source database handle: %w", err)
	}
	a.shutdown.RegisterCloser("source-db", sqlDB)

	a.redis, err = redisqueue.Connect(ctx, cfg.Redis.URL, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.shutdown.RegisterCloser("redis", a.redis)

	var archive ports.ErrorArchive
	if cfg.Archive.Bucket != "" {
		archive, err = s3archive.New(ctx, s3archive.Config{
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
			Region:          cfg.Archive.Region,
			EndpointURL:     cfg.Archive.EndpointURL,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		}, logger)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	a.wire(archive)
	return a, nil
}

// wire builds the engine services over the connected stores
func (a *app) wire(archive ports.ErrorArchive) {
	cfg := a.cfg
	log := logging.NewZapLogger(a.logger)

	db := postgres.NewDBExecutor(a.pool)
	source := wordpress.NewSourceCatalog(a.sourceDB, cfg.Source.TablePrefix, log)
	target := postgres.NewTargetCatalog(db)

	var repo ports.StateRepository
	if cfg.Migration.StateBackend == config.StateBackendRedis {
		repo = redisstore.NewStateRepository(a.redis, cfg.Redis.StateKey)
	} else {
		repo = postgres.NewStateRepository(a.pool)
	}
	a.store = state.NewStore(repo, archive, log, cfg.Migration.MaxErrors)

	a.queue = redisqueue.NewQueue(a.redis, cfg.Redis.Prefix, a.logger)

	mapper := gateway.NewMapper(target, log)
	a.orchestrator = orchestrator.New(
		discovery.NewService(source, target, log, cfg.Migration.MinSourceVersion),
		products.NewProcessor(source, target, a.store, log, cfg.Migration.ProductsBatchSize),
		subscriptions.NewProcessor(source, target, mapper, a.store, log, cfg.Migration.Location(), cfg.Migration.SubscriptionsBatchSize),
		a.queue,
		a.store,
		log,
	)
	a.guard = renewal.NewGuard(source, postgres.NewVetoLog(a.pool), log)
	a.cleanup = cleanup.NewService(source, target, a.store, log)
}

// healthChecker pings every store the worker depends on
func (a *app) healthChecker() *observability.HealthChecker {
	hc := observability.NewHealthChecker()
	hc.Register("target_db", a.pool.Ping)
	hc.Register("source_db", func(ctx context.Context) error {
		sqlDB, err := a.sourceDB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	hc.Register("redis", func(ctx context.Context) error {
		return a.redis.Ping(ctx).Err()
	})
	return hc
}

// runWorker consumes batch jobs until ctx is cancelled
func (a *app) runWorker(ctx context.Context) error {
	if a.cfg.Metrics.Enabled {
		server := observability.StartMetricsServer(strconv.Itoa(a.cfg.Metrics.Port), a.healthChecker(), a.logger)
		a.shutdown.Register("metrics-server", func(context.Context) error {
			return observability.ShutdownMetricsServer(server)
		})
		a.logger.Info("Metrics server started", zap.Int("port", a.cfg.Metrics.Port))
	}

	go postgres.MonitorPool(ctx, a.pool, time.Minute, a.logger)

	worker := redisqueue.NewWorker(a.queue, a.orchestrator.HandleJob, redisqueue.WorkerConfig{
		PollTimeout:   a.cfg.Worker.PollTimeout,
		JobsPerSecond: a.cfg.Worker.JobsPerSecond,
		MaxAttempts:   a.cfg.Worker.MaxAttempts,
	}, a.timeouts, a.logger)

	return worker.Run(ctx)
}

func (a *app) close() {
	a.shutdown.Shutdown()
}
