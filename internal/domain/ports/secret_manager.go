package ports

import "context"

// Secret represents a retrieved secret with metadata
type Secret struct {
	Metadata  map[string]string
	Value     string
	Version   string
	CreatedAt string
}

// SecretManager retrieves credentials (database passwords, archive keys) from a secret backend.
// Path format depends on implementation:
//   - AWS: "subscription-migrator/target-db"
//   - Vault: "subscription-migrator/target-db" under the configured KV v2 mount
//   - Local: file path relative to the base directory
type SecretManager interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
