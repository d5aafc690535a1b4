package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

func TestEnvSecretManager(t *testing.T) {
	t.Setenv("MIGRATOR_TARGET_DB_PASSWORD", "s3cret")
	m := NewEnvSecretManager("migrator")

	secret, err := m.GetSecret(context.Background(), "target/db-password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", secret.Value)
	assert.Equal(t, "MIGRATOR_TARGET_DB_PASSWORD", secret.Metadata["env"])

	_, err = m.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
}

func TestEnvName(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "source/db-password", "SOURCE_DB_PASSWORD"},
		{"app", "/archive.secret-key/", "APP_ARCHIVE_SECRET_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, envName(tt.prefix, tt.path))
		})
	}
}

func TestLocalSecretManager(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "db"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db", "plain"), []byte("hunter2\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db", "json"),
		[]byte(`{"value":"from-json","tags":{"env":"dev"},"created_at":"2024-01-01T00:00:00Z"}`), 0o600))

	m := NewLocalSecretManager(dir, zap.NewNop())
	ctx := context.Background()

	plain, err := m.GetSecret(ctx, "db/plain")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain.Value)

	structured, err := m.GetSecret(ctx, "db/json")
	require.NoError(t, err)
	assert.Equal(t, "from-json", structured.Value)
	assert.Equal(t, "dev", structured.Metadata["env"])
	assert.Equal(t, "2024-01-01T00:00:00Z", structured.CreatedAt)

	_, err = m.GetSecret(ctx, "db/none")
	assert.ErrorContains(t, err, "secret not found")

	// paths cannot climb out of the base directory
	_, err = m.GetSecret(ctx, "../../etc/passwd")
	assert.Error(t, err)
}

func TestSecretCache(t *testing.T) {
	c := newSecretCache(time.Minute)
	assert.Nil(t, c.get("a"))

	c.set("a", &ports.Secret{Value: "1"})
	require.NotNil(t, c.get("a"))
	assert.Equal(t, "1", c.get("a").Value)

	c.entries["a"].expiresAt = time.Now().Add(-time.Second)
	assert.Nil(t, c.get("a"))

	disabled := newSecretCache(0)
	disabled.set("a", &ports.Secret{Value: "1"})
	assert.Nil(t, disabled.get("a"))
}

type fakeSecretsManager struct {
	calls int
	out   *secretsmanager.GetSecretValueOutput
	err   error
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	return f.out, f.err
}

func TestAWSSecretsManagerAdapter_GetSecret(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeSecretsManager{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String("pw"),
		VersionId:    aws.String("v-7"),
		ARN:          aws.String("arn:aws:secretsmanager:us-east-1:1:secret:db"),
		Name:         aws.String("db"),
		CreatedDate:  &created,
	}}
	a := &awsSecretsManagerAdapter{client: client, logger: zap.NewNop(), cache: newSecretCache(time.Minute)}

	secret, err := a.GetSecret(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, "pw", secret.Value)
	assert.Equal(t, "v-7", secret.Version)
	assert.Equal(t, "2024-05-01T00:00:00Z", secret.CreatedAt)
	assert.Equal(t, "db", secret.Metadata["name"])

	_, err = a.GetSecret(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls, "second read is served from cache")
}

func TestAWSSecretsManagerAdapter_Error(t *testing.T) {
	a := &awsSecretsManagerAdapter{client: &fakeSecretsManager{err: errors.New("denied")}, logger: zap.NewNop(), cache: newSecretCache(0)}

	_, err := a.GetSecret(context.Background(), "db")
	assert.ErrorContains(t, err, "denied")
}

type fakeVault struct {
	paths  []string
	secret *vault.Secret
}

func (f *fakeVault) ReadWithContext(ctx context.Context, path string) (*vault.Secret, error) {
	f.paths = append(f.paths, path)
	return f.secret, nil
}

func TestVaultAdapter_GetSecretKV2(t *testing.T) {
	reader := &fakeVault{secret: &vault.Secret{Data: map[string]interface{}{
		"data": map[string]interface{}{"value": "pw", "user": "migrator"},
		"metadata": map[string]interface{}{
			"version":      json.Number("3"),
			"created_time": "2024-01-01T00:00:00Z",
		},
	}}}
	a := &vaultAdapter{reader: reader, config: DefaultVaultConfig("http://vault"), logger: zap.NewNop(), cache: newSecretCache(0)}

	secret, err := a.GetSecret(context.Background(), "migrator/target-db")
	require.NoError(t, err)
	assert.Equal(t, []string{"secret/data/migrator/target-db"}, reader.paths)
	assert.Equal(t, "pw", secret.Value)
	assert.Equal(t, "3", secret.Version)
	assert.Equal(t, "migrator", secret.Metadata["user"])
}

func TestVaultAdapter_GetSecretKV1(t *testing.T) {
	cfg := DefaultVaultConfig("http://vault")
	cfg.KVVersion = "v1"
	reader := &fakeVault{secret: &vault.Secret{Data: map[string]interface{}{"password": "pw"}}}
	a := &vaultAdapter{reader: reader, config: cfg, logger: zap.NewNop(), cache: newSecretCache(0)}

	secret, err := a.GetSecret(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, []string{"secret/db"}, reader.paths)
	assert.Equal(t, "pw", secret.Value)
	assert.Equal(t, "1", secret.Version)
}

func TestVaultAdapter_NotFound(t *testing.T) {
	a := &vaultAdapter{reader: &fakeVault{}, config: DefaultVaultConfig("http://vault"), logger: zap.NewNop(), cache: newSecretCache(0)}

	_, err := a.GetSecret(context.Background(), "db")
	assert.ErrorContains(t, err, "secret not found")
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	m, err := New(ctx, Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &envSecretManager{}, m)

	m, err = New(ctx, Config{Provider: ProviderLocal, LocalPath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &localSecretManager{}, m)

	_, err = New(ctx, Config{Provider: "gcp"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported secrets provider")

	_, err = New(ctx, Config{Provider: ProviderVault, Vault: VaultConfig{Address: "http://127.0.0.1:1"}}, zap.NewNop())
	assert.ErrorContains(t, err, "token is required")
}
