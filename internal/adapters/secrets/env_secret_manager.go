package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// envSecretManager resolves a path to an environment variable: "target/db-password" reads TARGET_DB_PASSWORD
type envSecretManager struct {
	prefix string
}

// NewEnvSecretManager creates a secret manager over the process environment
func NewEnvSecretManager(prefix string) ports.SecretManager {
	return &envSecretManager{prefix: prefix}
}

func (m *envSecretManager) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	name := envName(m.prefix, path)
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return nil, fmt.Errorf("secret not found: %s (%s)", path, name)
	}
	return &ports.Secret{
		Value:    value,
		Version:  "env",
		Metadata: map[string]string{"env": name},
	}, nil
}

func envName(prefix, path string) string {
	name := strings.ToUpper(strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(strings.Trim(path, "/")))
	if prefix != "" {
		name = strings.ToUpper(prefix) + "_" + name
	}
	return name
}
