package wordpress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

const (
	subscriptionsPlugin = "woocommerce-subscriptions/woocommerce-subscriptions.php"
	attachablePlugin    = "woocommerce-all-products-for-subscriptions/woocommerce-all-products-for-subscriptions.php"

	optionActivePlugins       = "active_plugins"
	optionSubscriptionVersion = "woocommerce_subscriptions_active_version"

	postTypeSubscription = "shop_subscription"
	postTypeOrder        = "shop_order"
	postTypeProduct      = "product"
	postTypeVariation    = "product_variation"

	metaAttachableSchemes = "_wcsatt_schemes"
	metaRenewalOf         = "_subscription_renewal"

	// DATE_FORMAT keeps datetime columns as text whatever the DSN's parseTime setting
	gmtDateFormat = "%Y-%m-%d %H:%i:%s"
)

// SourceCatalog implements ports.SourceCatalog over a WordPress database with WooCommerce Subscriptions
type SourceCatalog struct {
	db     *gorm.DB
	logger ports.Logger
	prefix string
}

var _ ports.SourceCatalog = (*SourceCatalog)(nil)

// NewSourceCatalog creates a source catalog. tablePrefix is the WordPress $table_prefix, e.g. "wp_".
func NewSourceCatalog(db *gorm.DB, tablePrefix string, logger ports.Logger) *SourceCatalog {
	return &SourceCatalog{db: db, prefix: tablePrefix, logger: logger}
}

func (c *SourceCatalog) t(name string) string {
	return c.prefix + name
}

type metaRow struct {
	PostID    int64
	MetaKey   string
	MetaValue string
}

// metaFor loads postmeta for the given posts. For duplicated keys the oldest row wins.
func (c *SourceCatalog) metaFor(ctx context.Context, ids []int64, keys ...string) (map[int64]map[string]string, error) {
	out := make(map[int64]map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q := c.db.WithContext(ctx).Table(c.t("postmeta")).
		Select("post_id, meta_key, COALESCE(meta_value, '') AS meta_value").
		Where("post_id IN ?", ids)
	if len(keys) > 0 {
		q = q.Where("meta_key IN ?", keys)
	}

	var rows []metaRow
	if err := q.Order("meta_id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load postmeta: %w", err)
	}

	for _, id := range ids {
		out[id] = map[string]string{}
	}
	for _, r := range rows {
		m := out[r.PostID]
		if _, seen := m[r.MetaKey]; !seen {
			m[r.MetaKey] = r.MetaValue
		}
	}
	return out, nil
}

func (c *SourceCatalog) postMeta(ctx context.Context, id int64) (map[string]string, error) {
	all, err := c.metaFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	return all[id], nil
}

func (c *SourceCatalog) option(ctx context.Context, name string) (string, error) {
	var values []string
	err := c.db.WithContext(ctx).Table(c.t("options")).
		Where("option_name = ?", name).
		Limit(1).
		Pluck("option_value", &values).Error
	if err != nil {
		return "", fmt.Errorf("read option %s: %w", name, err)
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

func (c *SourceCatalog) pluginActive(ctx context.Context, plugin string) (bool, error) {
	raw, err := c.option(ctx, optionActivePlugins)
	if err != nil {
		return false, err
	}
	for _, p := range decodeStringList(raw) {
		if p == plugin {
			return true, nil
		}
	}
	return false, nil
}

func (c *SourceCatalog) SystemStatus(ctx context.Context) (domain.SourceSystemStatus, error) {
	active, err := c.pluginActive(ctx, subscriptionsPlugin)
	if err != nil {
		return domain.SourceSystemStatus{}, err
	}
	version, err := c.option(ctx, optionSubscriptionVersion)
	if err != nil {
		return domain.SourceSystemStatus{}, err
	}
	return domain.SourceSystemStatus{Active: active, Version: strings.TrimSpace(version)}, nil
}

func (c *SourceCatalog) AttachableSchemesActive(ctx context.Context) (bool, error) {
	return c.pluginActive(ctx, attachablePlugin)
}

// upsertMeta writes a postmeta value, updating the existing row when there is one
func (c *SourceCatalog) upsertMeta(tx *gorm.DB, postID int64, key, value string) error {
	var n int64
	err := tx.Table(c.t("postmeta")).
		Where("post_id = ? AND meta_key = ?", postID, key).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("look up meta %s on post %d: %w", key, postID, err)
	}

	if n > 0 {
		err = tx.Table(c.t("postmeta")).
			Where("post_id = ? AND meta_key = ?", postID, key).
			Update("meta_value", value).Error
	} else {
		err = tx.Table(c.t("postmeta")).Create(map[string]interface{}{
			"post_id":    postID,
			"meta_key":   key,
			"meta_value": value,
		}).Error
	}
	if err != nil {
		return fmt.Errorf("write meta %s on post %d: %w", key, postID, err)
	}
	return nil
}

func (c *SourceCatalog) postExists(ctx context.Context, id int64, postTypes ...string) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).Table(c.t("posts")).
		Where("ID = ? AND post_type IN ?", id, postTypes).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("look up post %d: %w", id, err)
	}
	return n > 0, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrRecordNotFound
	}
	return err
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}
