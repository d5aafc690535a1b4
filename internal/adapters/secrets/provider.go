// Package secrets resolves credentials from AWS Secrets Manager, HashiCorp Vault, local files or the environment.
package secrets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// Provider names accepted by New
const (
	ProviderEnv   = "env"
	ProviderLocal = "local"
	ProviderAWS   = "aws"
	ProviderVault = "vault"
)

// Config selects and configures a secret backend
type Config struct {
	Provider  string
	EnvPrefix string
	LocalPath string
	AWS       AWSSecretsManagerConfig
	Vault     VaultConfig
	CacheTTL  time.Duration
}

// New creates the SecretManager named by cfg.Provider
func New(ctx context.Context, cfg Config, logger *zap.Logger) (ports.SecretManager, error) {
	switch cfg.Provider {
	case ProviderEnv, "":
		return NewEnvSecretManager(cfg.EnvPrefix), nil
	case ProviderLocal:
		return NewLocalSecretManager(cfg.LocalPath, logger), nil
	case ProviderAWS:
		awsCfg := cfg.AWS
		awsCfg.CacheTTL = cfg.CacheTTL
		return NewAWSSecretsManagerAdapter(ctx, &awsCfg, logger)
	case ProviderVault:
		vaultCfg := cfg.Vault
		vaultCfg.CacheTTL = cfg.CacheTTL
		if vaultCfg.MountPath == "" {
			vaultCfg.MountPath = "secret"
		}
		return NewVaultAdapter(ctx, &vaultCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported secrets provider: %s", cfg.Provider)
	}
}
