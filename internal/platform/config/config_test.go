package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LAND_REGISTRY_ADMIN", "0xAdmin")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, 128, cfg.Ledger.LockShards)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Redis.PropertyTTL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.True(t, cfg.UsingDevSigningKey())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LAND_REGISTRY_ADMIN", "0xadmin")
	t.Setenv("LEDGER_BACKEND", "Postgres")
	t.Setenv("LEDGER_POSTGRES_DSN", "postgres://ledger@localhost/ledger")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("JWT_SIGNING_KEY", "s3cret")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Ledger.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.False(t, cfg.UsingDevSigningKey())
}

func TestFromEnvRejectsInvalidCombinations(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing admin", env: map[string]string{}},
		{name: "unknown backend", env: map[string]string{"LAND_REGISTRY_ADMIN": "0xa", "LEDGER_BACKEND": "mongo"}},
		{name: "postgres without dsn", env: map[string]string{"LAND_REGISTRY_ADMIN": "0xa", "LEDGER_BACKEND": "postgres"}},
		{name: "zero batch", env: map[string]string{"LAND_REGISTRY_ADMIN": "0xa", "OUTBOX_BATCH_SIZE": "0"}},
		{name: "bad duration", env: map[string]string{"LAND_REGISTRY_ADMIN": "0xa", "SHUTDOWN_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LAND_REGISTRY_ADMIN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
