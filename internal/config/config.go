package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// DefaultSecret signs cookie sessions when no secret is configured. It is
// refused in release mode.
const DefaultSecret = "duet-dev-secret"

type Config struct {
	Mode     string      `mapstructure:"mode"`
	Port     int         `mapstructure:"port"`
	Secret   string      `mapstructure:"secret"`
	LogLevel string      `mapstructure:"log_level"`
	Store    StoreConfig `mapstructure:"store"`
	Peer     PeerConfig  `mapstructure:"peer"`
}

// StoreConfig configures the record-store server.
type StoreConfig struct {
	WritePolicy       string        `mapstructure:"write_policy"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
	CandidateLimit    int           `mapstructure:"candidate_limit"`
	CandidateInterval time.Duration `mapstructure:"candidate_interval"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
}

// PeerConfig configures the headless peer.
type PeerConfig struct {
	StoreURL     string   `mapstructure:"store_url"`
	ICEServers   []string `mapstructure:"ice_servers"`
	Action       string   `mapstructure:"action"`
	CallID       string   `mapstructure:"call_id"`
	AutoAnswer   bool     `mapstructure:"auto_answer"`
	AudioRTPAddr string   `mapstructure:"audio_rtp_addr"`
	VideoRTPAddr string   `mapstructure:"video_rtp_addr"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, defaulting to the dev env.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads one YAML file over the defaults. A missing file is not an
// error. DUET_-prefixed environment variables override both.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("DUET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", DefaultSecret)
	v.SetDefault("log_level", "info")

	v.SetDefault("store.write_policy", "first_write_wins")
	v.SetDefault("store.subscriber_buffer", 16)
	v.SetDefault("store.candidate_limit", 64)
	v.SetDefault("store.candidate_interval", "10s")
	v.SetDefault("store.read_limit", 32768)
	v.SetDefault("store.ping_period", "54s")

	v.SetDefault("peer.store_url", "http://localhost:8080")
	v.SetDefault("peer.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("peer.action", "call")
	v.SetDefault("peer.call_id", "")
	v.SetDefault("peer.auto_answer", true)
	v.SetDefault("peer.audio_rtp_addr", "")
	v.SetDefault("peer.video_rtp_addr", "")

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
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Store.CandidateLimit <= 0 || c.Store.CandidateInterval <= 0 {
		return fmt.Errorf("store.candidate_limit and store.candidate_interval must be positive")
	}
	return nil
}

// ValidateServer checks what the record-store server needs on top of Load.
func (c *Config) ValidateServer() error {
	if c.Mode == "release" && (c.Secret == "" || c.Secret == DefaultSecret) {
		return fmt.Errorf("secret must be set in release mode")
	}
	return nil
}

// ValidatePeer checks the peer section.
func (c *Config) ValidatePeer() error {
	switch c.Peer.Action {
	case "call", "join":
	default:
		return fmt.Errorf("peer.action must be call or join, got %q", c.Peer.Action)
	}
	if c.Peer.Action == "join" && c.Peer.CallID == "" {
		return fmt.Errorf("peer.call_id is required to join")
	}
	return nil
}
