package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	portFlag            = "port"
	ginModeFlag         = "gin-mode"
	tlsCertFileFlag     = "tls-cert-file"
	tlsKeyFileFlag      = "tls-key-file"
	jwtSecretFlag       = "jwt-secret"
	tokenExpiryFlag     = "token-expiry"
	daemonSecretFlag    = "daemon-secret"
	daemonTimeoutFlag   = "daemon-timeout"
	databasePathFlag    = "database-path"
	developmentFlag     = "development"
	kafkaBrokersFlag    = "kafka-brokers"
	kafkaTopicFlag      = "kafka-topic"
	loginRateLimitFlag  = "login-rate-limit"
	shutdownTimeoutFlag = "shutdown-timeout"
	trustedProxiesFlag  = "trusted-proxies"
)

var keys = []string{
	portFlag, ginModeFlag, tlsCertFileFlag, tlsKeyFileFlag, jwtSecretFlag,
	tokenExpiryFlag, daemonSecretFlag, daemonTimeoutFlag, databasePathFlag,
	developmentFlag, kafkaBrokersFlag, kafkaTopicFlag, loginRateLimitFlag,
	shutdownTimeoutFlag, trustedProxiesFlag,
}

type Config struct {
	Port        int
	GinMode     string
	TLSCertFile string
	TLSKeyFile  string

	JWTSecret   string
	TokenExpiry time.Duration

	DaemonSecret  string
	DaemonTimeout time.Duration

	DatabasePath string
	Development  bool

	Kafka KafkaConfig

	// LoginRateLimit is the number of login attempts per client IP per minute.
	LoginRateLimit  int
	ShutdownTimeout time.Duration

	// TrustedProxies lists the proxy IPs or CIDRs whose forwarding headers
	// name the client address. Empty means the peer address is the client.
	TrustedProxies []string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether a lifecycle stream should be written.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// NewFlagSet declares every setting with its default. Commands add it to their
// own flags; Load reads it back.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("hostpanel", pflag.ContinueOnError)
	fs.Int(portFlag, 3000, "HTTP listen port")
	fs.String(ginModeFlag, "release", "gin mode (debug, release, test)")
	fs.String(tlsCertFileFlag, "", "TLS certificate file")
	fs.String(tlsKeyFileFlag, "", "TLS key file")
	fs.String(jwtSecretFlag, "", "secret used to sign session tokens")
	fs.Duration(tokenExpiryFlag, 7*24*time.Hour, "session token lifetime")
	fs.String(daemonSecretFlag, "", "secret shared with node daemons")
	fs.Duration(daemonTimeoutFlag, 5*time.Second, "timeout for calls to node daemons")
	fs.String(databasePathFlag, "hostpanel.db", "sqlite database file")
	fs.Bool(developmentFlag, false, "development logging")
	fs.StringSlice(kafkaBrokersFlag, nil, "Kafka brokers for the lifecycle stream, empty disables it")
	fs.String(kafkaTopicFlag, "server-lifecycle", "Kafka topic for the lifecycle stream")
	fs.Int(loginRateLimitFlag, 10, "login attempts per client IP per minute")
	fs.Duration(shutdownTimeoutFlag, 10*time.Second, "graceful shutdown timeout")
	fs.StringSlice(trustedProxiesFlag, nil, "proxy IPs or CIDRs allowed to set X-Forwarded-For, empty trusts none")
	return fs
}

// Load resolves settings from fs and the environment. Explicit flags win over
// environment variables, which win over defaults. Environment names are the
// upper-cased flag names with dashes replaced by underscores.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Port:            v.GetInt(portFlag),
		GinMode:         v.GetString(ginModeFlag),
		TLSCertFile:     v.GetString(tlsCertFileFlag),
		TLSKeyFile:      v.GetString(tlsKeyFileFlag),
		JWTSecret:       v.GetString(jwtSecretFlag),
		TokenExpiry:     v.GetDuration(tokenExpiryFlag),
		DaemonSecret:    v.GetString(daemonSecretFlag),
		DaemonTimeout:   v.GetDuration(daemonTimeoutFlag),
		DatabasePath:    v.GetString(databasePathFlag),
		Development:     v.GetBool(developmentFlag),
		LoginRateLimit:  v.GetInt(loginRateLimitFlag),
		ShutdownTimeout: v.GetDuration(shutdownTimeoutFlag),
		TrustedProxies:  splitList(v.GetStringSlice(trustedProxiesFlag)),
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetStringSlice(kafkaBrokersFlag)),
			Topic:   v.GetString(kafkaTopicFlag),
		},
	}
	return cfg, cfg.validate()
}

// LoadArgs parses args against a fresh flag set and loads it.
func LoadArgs(args []string) (Config, error) {
	fs := NewFlagSet()
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return Load(fs)
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt-secret is required")
	}
	if c.DaemonSecret == "" {
		return errors.New("daemon-secret is required")
	}
	if c.TokenExpiry <= 0 {
		return errors.New("invalid token-expiry")
	}
	if c.DaemonTimeout <= 0 {
		return errors.New("invalid daemon-timeout")
	}
	if c.DatabasePath == "" {
		return errors.New("database-path is required")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls-cert-file and tls-key-file must be set together")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("kafka-topic is required when kafka-brokers is set")
	}
	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid trusted proxy %q", proxy)
			}
		}
	}
	return nil
}

// splitList accepts both repeated values and a single comma separated one.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
