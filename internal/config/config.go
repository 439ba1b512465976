package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	// WriteTimeout bounds a single frame write on the wire.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SendBuffer is the outbound queue per connection; a full queue fails the send.
	SendBuffer    int `mapstructure:"send_buffer"`
	Shards        int `mapstructure:"shards"`
	FanoutWorkers int `mapstructure:"fanout_workers"`

	SignalRateLimit    int           `mapstructure:"signal_rate_limit"`
	SignalRateInterval time.Duration `mapstructure:"signal_rate_interval"`
	// Policy is "simple" or "passive"; passive never closes a transport.
	Policy string `mapstructure:"policy"`
	// CloseReplaced closes a call connection replaced by a reconnect.
	CloseReplaced   bool          `mapstructure:"close_replaced"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("shards", 32)
	v.SetDefault("fanout_workers", 64)
	v.SetDefault("signal_rate_limit", 50)
	v.SetDefault("signal_rate_interval", "1s")
	v.SetDefault("policy", "simple")
	v.SetDefault("close_replaced", true)
	v.SetDefault("shutdown_timeout", "5s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (or CONFIG_FILE) on top of the
// defaults. NOTIFY_* environment variables override both.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := os.Getenv("CONFIG_FILE")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("notify")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Int("shards", cfg.Shards).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.SendBuffer < 1:
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	case c.PingPeriod >= c.PongWait:
		return fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)", c.PingPeriod, c.PongWait)
	case c.Policy != "simple" && c.Policy != "passive":
		return fmt.Errorf("policy must be simple or passive, got %q", c.Policy)
	}
	return nil
}
