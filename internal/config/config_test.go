package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeLogger, cfg.Mode)
	assert.Equal(t, "crypto_output_log_1min_screened.txt", cfg.Trader.ScreenedLog)
	assert.Equal(t, 8, cfg.Trader.MaxRetries)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
mode = "trader"

[exchange]
api_key = "file-key"
api_secret = "file-secret"
recv_window = "3s"

[trader]
frequency = "10m"
max_retries = 3

[trader.stop_loss]
enabled = true
percent = 2.5
count = 2
`)
	t.Setenv("CRYPTOBOT_EXCHANGE_API_KEY", "env-key")
	t.Setenv("CRYPTOBOT_NOTIFY_EVENTS", "trade, error ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeTrader, cfg.Mode)
	assert.Equal(t, "env-key", cfg.Exchange.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Exchange.RecvWindow.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Trader.Frequency.Duration)
	assert.Equal(t, 3, cfg.Trader.MaxRetries)
	assert.Equal(t, LimitConfig{Enabled: true, Percent: 2.5, Count: 2}, cfg.Trader.StopLoss)
	// untouched sections keep their defaults
	assert.Equal(t, 10.0, cfg.Trader.TakeProfit.Percent)
	assert.Equal(t, []string{"trade", "error"}, cfg.Notify.Events)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("CRYPTOBOT_MODE", "bootstrap")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeBootstrap, cfg.Mode)
}

func TestLoadBadFile(t *testing.T) {
	_, err := Load(writeConfig(t, `mode = [`))
	assert.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trader"
	cfg.LogLevel = "loud"
	cfg.Trader.Source = "ssh"
	cfg.Logger.Publish = true
	cfg.Trader.StopLoss.Count = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown log_level "loud"`,
		"exchange: api_key is required for mode trader",
		"ssh: host and user are required",
		"logger: publish and cache_prices require redis.enabled",
		"trader: stop_loss.count must be >= 1 when enabled",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateKeystoreSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeTrader
	cfg.Exchange.APIKey = "key"
	cfg.Keystore.EncryptedSecretPath = "secret.json"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keystore: password is required")

	cfg.Keystore.Password = "pw"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.APIKey = "key"
	cfg.Exchange.APISecret = "secret"
	cfg.Postgres.Password = "pw"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Exchange.APIKey)
	assert.Equal(t, "***", out.Exchange.APISecret)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "secret", cfg.Exchange.APISecret)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "trade", cfg.Notify.Events[0])
}
