package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type SessionsConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	AutoCreate          bool          `mapstructure:"auto_create"`
	FrameFanout         string        `mapstructure:"frame_fanout"`
	KickSlowControllers bool          `mapstructure:"kick_slow_controllers"`
}

type RateLimitConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type HostConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DisplayName string `mapstructure:"display_name"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	Secret       string        `mapstructure:"secret"`
	LogLevel     string        `mapstructure:"log_level"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`

	Sessions   SessionsConfig  `mapstructure:"sessions"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	ICEServers []ICEServer     `mapstructure:"ice_servers"`
	Host       HostConfig      `mapstructure:"host"`
}

// TLS reports whether both a certificate and a key are configured.
func (c *Config) TLS() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	// frames are base64 JPEG, well above the signalling default
	v.SetDefault("read_limit", 8<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("secret", "desk-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("cert_file", "")
	v.SetDefault("key_file", "")

	v.SetDefault("sessions.timeout", "30m")
	v.SetDefault("sessions.sweep_interval", "5m")
	v.SetDefault("sessions.auto_create", false)
	v.SetDefault("sessions.frame_fanout", "multi")
	v.SetDefault("sessions.kick_slow_controllers", false)

	v.SetDefault("rate_limit.limit", 5)
	v.SetDefault("rate_limit.interval", "10s")

	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
	})

	v.SetDefault("host.enabled", false)
	v.SetDefault("host.display_name", "Desk host")
}

// Load reads config/config.<CONFIG_ENV>.yaml, or path when it is not empty.
// A missing file is not an error; defaults and DESK_* env vars still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix("DESK")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.Sessions.Timeout <= 0:
		return fmt.Errorf("sessions.timeout must be positive, got %s", c.Sessions.Timeout)
	case c.Sessions.SweepInterval <= 0:
		return fmt.Errorf("sessions.sweep_interval must be positive, got %s", c.Sessions.SweepInterval)
	case c.SendBuffer <= 0:
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	case c.RateLimit.Limit <= 0:
		return fmt.Errorf("rate_limit.limit must be positive, got %d", c.RateLimit.Limit)
	case (c.CertFile == "") != (c.KeyFile == ""):
		return errors.New("cert_file and key_file must be set together")
	}
	return nil
}

var envKeyReplacer = strings.NewReplacer(".", "_")
