package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "chat:", cfg.KeyPrefix)
	assert.Equal(t, 5*time.Minute, cfg.IdleThreshold)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 24, cfg.JWTExpiryHours)
	assert.Equal(t, 20, cfg.MessageRateLimit)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PRESENCE_IDLE_THRESHOLD", "90s")
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "30s")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("MESSAGE_RATE_LIMIT", "0")
	t.Setenv("NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("LOG_LEVEL", "loud")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.IdleThreshold)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, 0, cfg.MessageRateLimit)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":  {"PRESENCE_IDLE_THRESHOLD", "five minutes"},
		"zero duration": {"STORE_TIMEOUT", "0s"},
		"bad int":       {"REDIS_DB", "one"},
		"negative int":  {"MESSAGE_RATE_LIMIT", "-1"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(kv[0], kv[1])

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_RequiresSecrets(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("JWT_SECRET", "x")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("JWT_SECRET", "")
	_, err = LoadConfig()
	assert.Error(t, err)
}
