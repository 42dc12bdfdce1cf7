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
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	LogLevel   string `mapstructure:"log_level"`

	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	SendQueueSize   int           `mapstructure:"send_queue_size"`
	RoomMailboxSize int           `mapstructure:"room_mailbox_size"`
	RoomGracePeriod time.Duration `mapstructure:"room_grace_period"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateInterval    time.Duration `mapstructure:"rate_interval"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`

	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	DBPath            string `mapstructure:"db_path"`
	PersistChat       bool   `mapstructure:"persist_chat"`
	RequireKnownRooms bool   `mapstructure:"require_known_rooms"`
}

// DefaultSecret signs sessions and tokens when nothing else is configured.
const DefaultSecret = "change-me-in-production"

// InsecureSecret reports a release build still signing with DefaultSecret.
func (c *Config) InsecureSecret() bool {
	return c.Mode == "release" && (c.Secret == "" || c.Secret == DefaultSecret)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")

	v.SetDefault("read_limit", 512*1024)
	v.SetDefault("ping_period", "30s")
	v.SetDefault("idle_timeout", "75s")
	v.SetDefault("send_queue_size", 64)
	v.SetDefault("room_mailbox_size", 256)
	v.SetDefault("room_grace_period", "0s")
	v.SetDefault("rate_limit", 50)
	v.SetDefault("rate_interval", "1s")
	v.SetDefault("allowed_origins", []string{})

	v.SetDefault("secret", DefaultSecret)
	v.SetDefault("token_ttl", "168h")

	v.SetDefault("db_path", "./coderoom.db")
	v.SetDefault("persist_chat", false)
	v.SetDefault("require_known_rooms", true)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Any key can be
// overridden with a CODEROOM_ prefixed environment variable.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("CODEROOM")
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
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("db", cfg.DBPath).
		Msg("config ready")
	return &cfg, nil
}
