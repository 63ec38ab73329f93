package wvc

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the file form of the settings used by hosts and widgets.
type Config struct {
	Namespace      string         `yaml:"namespace"`
	InitDataPolicy InitDataPolicy `yaml:"init_data_policy"`
	LegacyAliases  *bool          `yaml:"legacy_aliases"`

	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`

	Heartbeat struct {
		Interval    time.Duration `yaml:"interval"`
		PongTimeout time.Duration `yaml:"pong_timeout"`
		WriteWait   time.Duration `yaml:"write_wait"`
		ReadLimit   int64         `yaml:"read_limit"`
	} `yaml:"heartbeat"`

	SendQueueSize int `yaml:"send_queue_size"`

	Redis struct {
		Addr    string `yaml:"addr"`
		Prefix  string `yaml:"prefix"`
		Session string `yaml:"session"`
	} `yaml:"redis"`
}

func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML file and fills in defaults for missing fields.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if cfg.InitDataPolicy != "" && cfg.InitDataPolicy != InitDataMerge && cfg.InitDataPolicy != InitDataReplace {
		return Config{}, errors.Errorf("unknown init_data_policy %q", cfg.InitDataPolicy)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.InitDataPolicy == "" {
		c.InitDataPolicy = InitDataMerge
	}
	if c.LegacyAliases == nil {
		enabled := true
		c.LegacyAliases = &enabled
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	def := defaultHeartbeatConfig()
	if c.Heartbeat.Interval <= 0 {
		c.Heartbeat.Interval = def.Interval
	}
	if c.Heartbeat.PongTimeout <= 0 {
		c.Heartbeat.PongTimeout = def.PongTimeout
	}
	if c.Heartbeat.WriteWait <= 0 {
		c.Heartbeat.WriteWait = def.WriteWait
	}
	if c.Heartbeat.ReadLimit <= 0 {
		c.Heartbeat.ReadLimit = def.ReadLimit
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "wvc"
	}
}

// ChannelOptions converts the config into channel options.
func (c Config) ChannelOptions() []Option {
	opts := []Option{
		WithNamespace(c.Namespace),
		WithInitDataPolicy(c.InitDataPolicy),
	}
	if c.LegacyAliases != nil {
		opts = append(opts, WithLegacyAliases(*c.LegacyAliases))
	}
	return opts
}

// ServerOptions converts the config into server options.
func (c Config) ServerOptions() []ServerOption {
	return []ServerOption{
		WithHeartbeat(HeartbeatConfig{
			Interval:    c.Heartbeat.Interval,
			PongTimeout: c.Heartbeat.PongTimeout,
			WriteWait:   c.Heartbeat.WriteWait,
			ReadLimit:   c.Heartbeat.ReadLimit,
		}),
		WithSendQueueSize(c.SendQueueSize),
		WithChannelOptions(c.ChannelOptions()...),
	}
}
