package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "CONVERSE"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	// ChatLimit messages per ChatInterval per connection; 0 disables the limit.
	ChatLimit    int           `mapstructure:"chat_limit"`
	ChatInterval time.Duration `mapstructure:"chat_interval"`
}

// ClientConfig drives cmd/client. Flags bound with BindPFlags win over the
// file and the environment.
type ClientConfig struct {
	Server       string   `mapstructure:"server"`
	Room         string   `mapstructure:"room"`
	User         uint64   `mapstructure:"user"`
	Stream       bool     `mapstructure:"stream"`
	ICEServers   []string `mapstructure:"ice_servers"`
	MaxStreamers int      `mapstructure:"max_streamers"`
	Glare        string   `mapstructure:"glare"`
	LogLevel     string   `mapstructure:"log_level"`
}

func fileFor(kind string) string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/%s.%s.yaml", kind, env)
}

func newViper(fileName string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper, fileName string) {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		return
	}
	log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
}

func Load() (*Config, error) {
	return LoadFile(fileFor("config"))
}

func LoadFile(fileName string) (*Config, error) {
	v := newViper(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("write_wait", "5s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("chat_limit", 5)
	v.SetDefault("chat_interval", "3s")

	read(v, fileName)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PingPeriod >= cfg.PongWait && cfg.PongWait > 0 {
		return nil, fmt.Errorf("ping_period %s must be shorter than pong_wait %s", cfg.PingPeriod, cfg.PongWait)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("static", cfg.StaticPath).Msg("server config")
	return &cfg, nil
}

func LoadClient(flags *pflag.FlagSet) (*ClientConfig, error) {
	return LoadClientFile(fileFor("client"), flags)
}

func LoadClientFile(fileName string, flags *pflag.FlagSet) (*ClientConfig, error) {
	v := newViper(fileName)

	v.SetDefault("server", "ws://localhost:8080/ws")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("max_streamers", 4)
	v.SetDefault("glare", "polite")
	v.SetDefault("log_level", "warn")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	read(v, fileName)

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	return &cfg, nil
}

// ParseLevel maps a config level onto zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
