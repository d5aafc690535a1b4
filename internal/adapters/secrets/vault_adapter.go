package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// VaultConfig contains configuration for the HashiCorp Vault adapter
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// "token" or "approle"
	AuthMethod string
	Token      string
	RoleID     string
	SecretID   string

	// Vault Enterprise namespace
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// "v1" or "v2" (default: "v2")
	KVVersion string

	CacheTTL      time.Duration
	TLSSkipVerify bool
}

// DefaultVaultConfig returns token auth against a KV v2 mount named "secret"
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:    address,
		AuthMethod: "token",
		MountPath:  "secret",
		KVVersion:  "v2",
		CacheTTL:   5 * time.Minute,
	}
}

// logicalReader reads raw secrets; *vault.Logical satisfies it
type logicalReader interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

type vaultAdapter struct {
	reader logicalReader
	config *VaultConfig
	logger *zap.Logger
	cache  *secretCache
}

// NewVaultAdapter creates a SecretManager over HashiCorp Vault
func NewVaultAdapter(ctx context.Context, cfg *VaultConfig, logger *zap.Logger) (ports.SecretManager, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault adapter initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return &vaultAdapter{
		reader: client.Logical(),
		config: cfg,
		logger: logger,
		cache:  newSecretCache(cfg.CacheTTL),
	}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	switch cfg.AuthMethod {
	case "token", "":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// GetSecret reads a secret stored under the "value" key, or the first string field
func (a *vaultAdapter) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := a.cache.get(path); cached != nil {
		return cached, nil
	}

	raw, err := a.reader.ReadWithContext(ctx, a.kvPath(path))
	if err != nil {
		a.logger.Error("Vault read failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("read %s from vault: %w", path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("secret not found: %s", path)
	}

	fields, result, err := a.unwrap(raw)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", path, err)
	}

	result.Value = pickValue(fields)
	if result.Value == "" {
		return nil, fmt.Errorf("secret %s has no string value", path)
	}
	result.Metadata = make(map[string]string, len(fields))
	for k, v := range fields {
		if str, ok := v.(string); ok && k != "value" {
			result.Metadata[k] = str
		}
	}

	a.cache.set(path, result)
	return result, nil
}

func (a *vaultAdapter) kvPath(path string) string {
	if a.config.KVVersion == "v1" {
		return a.config.MountPath + "/" + path
	}
	return a.config.MountPath + "/data/" + path
}

// unwrap returns the secret's fields and a Secret carrying its version info.
// KV v2 nests fields under "data" and versioning under "metadata".
func (a *vaultAdapter) unwrap(raw *vault.Secret) (map[string]interface{}, *ports.Secret, error) {
	if a.config.KVVersion == "v1" {
		return raw.Data, &ports.Secret{Version: "1"}, nil
	}

	fields, ok := raw.Data["data"].(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("unexpected KV v2 payload")
	}
	result := &ports.Secret{}
	if meta, ok := raw.Data["metadata"].(map[string]interface{}); ok {
		if v, ok := meta["version"].(json.Number); ok {
			result.Version = v.String()
		}
		result.CreatedAt, _ = meta["created_time"].(string)
	}
	return fields, result, nil
}

func pickValue(fields map[string]interface{}) string {
	if v, _ := fields["value"].(string); v != "" {
		return v
	}
	for _, v := range fields {
		if str, ok := v.(string); ok && str != "" {
			return str
		}
	}
	return ""
}
