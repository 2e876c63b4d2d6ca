package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithSecretFromEnv(t *testing.T) {
	t.Setenv("AMICI_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, ":8083", cfg.HTTPAddr)
	assert.True(t, cfg.WS.EchoToOrigin)
	assert.Equal(t, 32, cfg.RegistryShards)
	assert.Equal(t, 60*time.Second, cfg.WS.PongWait)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AMICI_AUTH_JWT_SECRET", "x")
	t.Setenv("AMICI_STORE", "MEMORY")
	t.Setenv("AMICI_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AMICI_WS_ECHO_TO_ORIGIN", "false")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.WS.EchoToOrigin)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "amici.toml")
	content := `
store = "memory"

[auth]
jwt_secret = "from-file"

[registry]
shards = 8
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, 8, cfg.RegistryShards)
}

func TestLoadRejectsMissingSecretAndUnknownStore(t *testing.T) {
	t.Setenv("AMICI_STORE", "mongo")

	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
	assert.Contains(t, err.Error(), `unknown store "mongo"`)
}
