package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "thistle-api", cfg.AppName)
	assert.Equal(t, 3010, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Database().BusyTimeout)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_EnvironmentAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("WORKSPACE_PATH=/data/case.db\nKAFKA_AUDIT_TOPIC=from-file\n"), 0o600))

	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_AUDIT_TOPIC", "from-env")
	t.Setenv("PORT", "9000")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	t.Cleanup(func() { os.Unsetenv("WORKSPACE_PATH") })

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/data/case.db", cfg.Database().Path)
	assert.True(t, cfg.KafkaEnabled())

	producer := cfg.Producer()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, producer.Brokers)
	assert.Equal(t, "from-env", producer.Topic)
	assert.Equal(t, 100*time.Millisecond, producer.BatchTimeout)
}
