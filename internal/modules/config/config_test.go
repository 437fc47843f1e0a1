package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"signal_exec/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
db_dsn: postgres://u:p@localhost:5432/exec
log_level: debug
worker:
  batch_limit: 20
  max_parallel: 4
  visibility_timeout: 90s
  max_attempts: 0
bybit:
  network: test
  api_key: KEY12345
  api_secret: s3cr3t
stream:
  backoff_floor: 500ms
  backoff_cap: 10s
  topics:
    public-linear: ["publicTrade.BTCUSDT", "tickers.BTCUSDT"]
    private-account: ["order", "position"]
tracing:
  enabled: true
  host: jaeger
  port: 6831
`

func TestDecode(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(sampleYAML), &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres://u:p@localhost:5432/exec", cfg.DB)
	assert.Equal(t, 20, cfg.Worker.BatchLimit)
	assert.Equal(t, 4, cfg.Worker.MaxParallel)
	assert.Equal(t, 90*time.Second, cfg.Worker.VisibilityTimeout)
	assert.Equal(t, 0, cfg.Worker.MaxAttempts)
	// не задано в файле — остаётся дефолт
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)

	assert.Equal(t, models.NetworkTest, cfg.Bybit.Network)
	assert.Equal(t, "KEY12345", cfg.Bybit.Credentials.APIKey)
	assert.Equal(t, "s3cr3t", cfg.Bybit.Credentials.APISecret)
	assert.Equal(t, "linear", cfg.Bybit.Category)

	assert.Equal(t, 500*time.Millisecond, cfg.Stream.BackoffFloor)
	assert.Equal(t, 20*time.Second, cfg.Stream.Heartbeat)
	assert.ElementsMatch(t, []string{"order", "position"}, cfg.Stream.Topics[models.StreamPrivate])

	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 6831, cfg.Tracing.Port)
}

func TestDecodeEmpty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(""), &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch", func(c *Config) { c.Worker.BatchLimit = 0 }},
		{"zero parallel", func(c *Config) { c.Worker.MaxParallel = 0 }},
		{"zero visibility", func(c *Config) { c.Worker.VisibilityTimeout = 0 }},
		{"negative attempts", func(c *Config) { c.Worker.MaxAttempts = -1 }},
		{"bad network", func(c *Config) { c.Bybit.Network = "staging" }},
		{"cap below floor", func(c *Config) { c.Stream.BackoffCap = time.Millisecond }},
		{"unknown kind", func(c *Config) {
			c.Stream.Topics = map[models.StreamKind][]string{"public-futures": {"x"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "values_test.yaml"), []byte(sampleYAML), 0o600))

	t.Setenv(configDirENV, dir)
	t.Setenv(configFilePathENV, "values_test.yaml")
	t.Setenv(databaseDSN, "postgres://env/exec")
	t.Setenv(bybitSecretENV, "from-env")
	t.Setenv("WORKER_MAX_PARALLEL", "16")
	t.Setenv("WORKER_VISIBILITY_TIMEOUT", "2m")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/exec", cfg.DB)
	assert.Equal(t, "from-env", cfg.Bybit.Credentials.APISecret)
	assert.Equal(t, 16, cfg.Worker.MaxParallel)
	assert.Equal(t, 2*time.Minute, cfg.Worker.VisibilityTimeout)
}

func TestNewConfigWithoutFile(t *testing.T) {
	t.Setenv(configDirENV, t.TempDir())
	t.Setenv(configFilePathENV, "missing.yaml")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Worker.BatchLimit)
}

func TestCredentialsRedacted(t *testing.T) {
	c := Credentials{APIKey: "ABCDEFGH", APISecret: "topsecret"}
	assert.NotContains(t, c.String(), "topsecret")
	assert.NotContains(t, c.String(), "EFGH")
	assert.Equal(t, "credentials{}", Credentials{}.String())
	assert.True(t, Credentials{APIKey: "k"}.Empty())
}
