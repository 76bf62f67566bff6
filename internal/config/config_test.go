package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredArgs(extra ...string) []string {
	return append([]string{"--jwt-secret=j", "--daemon-secret=d"}, extra...)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadArgs(requiredArgs())
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenExpiry)
	assert.Equal(t, 5*time.Second, cfg.DaemonTimeout)
	assert.Equal(t, "hostpanel.db", cfg.DatabasePath)
	assert.Equal(t, 10, cfg.LoginRateLimit)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "server-lifecycle", cfg.Kafka.Topic)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 192.168.0.0/16")
	cfg, err := LoadArgs(requiredArgs())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.TrustedProxies)
}

func TestLoadMissingSecrets(t *testing.T) {
	_, err := LoadArgs(nil)
	assert.EqualError(t, err, "jwt-secret is required")

	_, err = LoadArgs([]string{"--jwt-secret=j"})
	assert.EqualError(t, err, "daemon-secret is required")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DAEMON_SECRET", "daemon")
	t.Setenv("PORT", "8443")
	t.Setenv("DAEMON_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := LoadArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 8443, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.DaemonTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PORT", "8443")
	cfg, err := LoadArgs(requiredArgs("--port=1234"))
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Port)
}

func TestLoadValidation(t *testing.T) {
	tests := map[string][]string{
		"invalid port 0":         {"--port=0"},
		"invalid port 70000":     {"--port=70000"},
		"invalid daemon-timeout": {"--daemon-timeout=0s"},
		"tls-cert-file and tls-key-file must be set together": {"--tls-cert-file=cert.pem"},
		`invalid trusted proxy "proxy.local"`:                  {"--trusted-proxies=proxy.local"},
	}
	for want, args := range tests {
		_, err := LoadArgs(requiredArgs(args...))
		assert.EqualError(t, err, want)
	}
}
