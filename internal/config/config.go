// Package config loads relaycc's producer/worker/client configuration
// from a YAML file plus environment overrides, mirroring the teacher's
// viper-backed layering (file defaults < config file < RC_-prefixed env
// vars).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/relaycc/relaycc/internal/pb"
	"github.com/relaycc/relaycc/internal/security/tls"
)

// Config holds the full application configuration; a given process only
// reads the sub-section relevant to its role (producer, worker, client).
type Config struct {
	Producer ProducerConfig `mapstructure:"producer"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Client   ClientConfig   `mapstructure:"client"`
	Log      LogConfig      `mapstructure:"log"`
}

// ProducerConfig holds the routing core's listener and auxiliary
// interface settings (spec §6).
type ProducerConfig struct {
	GRPCPort      int        `mapstructure:"grpc_port"`
	BindAddr      string     `mapstructure:"bind_addr"`
	DashboardPort int        `mapstructure:"dashboard_port"`
	MDNSEnable    bool       `mapstructure:"mdns_enable"`
	Scheduler     string     `mapstructure:"scheduler"` // "round_robin" (default) or "least_busy"
	TLS           tls.Config `mapstructure:"tls"`

	// AuthToken is never read by the wire protocol itself (spec is
	// authentication-free by design); it exists only so an operator
	// fronting the producer with their own reverse proxy or mesh has a
	// place to store a token for that layer.
	AuthToken string `mapstructure:"auth_token"`
}

// WorkerConfig holds one worker process's identity and reconnect
// behavior.
type WorkerConfig struct {
	ProducerAddr   string        `mapstructure:"producer_addr"`
	Lang           string        `mapstructure:"lang"`
	Version        string        `mapstructure:"version"`
	Procarch       string        `mapstructure:"procarch"`
	Insecure       bool          `mapstructure:"insecure"`
	TLS            tls.Config    `mapstructure:"tls"`
	CompileTimeout time.Duration `mapstructure:"compile_timeout"`
	ReconnectMin   time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax   time.Duration `mapstructure:"reconnect_max"`
	AuthToken      string        `mapstructure:"auth_token"`
}

// Language parses the configured language name into a pb.Language,
// defaulting to pb.LanguageNone for anything unrecognized so the worker
// fails fast with ErrUnsupportedLanguage instead of silently compiling
// the wrong toolchain.
func (w WorkerConfig) Language() pb.Language {
	switch w.Lang {
	case "c", "C":
		return pb.LanguageC
	case "cpp", "c++", "CPP":
		return pb.LanguageCPP
	case "rust", "RUST":
		return pb.LanguageRust
	default:
		return pb.LanguageNone
	}
}

// ClientConfig holds the relaycc CLI's connection settings.
type ClientConfig struct {
	ProducerAddr string        `mapstructure:"producer_addr"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Insecure     bool          `mapstructure:"insecure"`
	AuthToken    string        `mapstructure:"auth_token"`
}

// LogConfig holds logging settings, shared by all three roles.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// DefaultConfig returns relaycc's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Producer: ProducerConfig{
			GRPCPort:      9002,
			BindAddr:      "127.0.0.1",
			DashboardPort: 8090,
			MDNSEnable:    true,
			Scheduler:     "round_robin",
		},
		Worker: WorkerConfig{
			Insecure:       true,
			CompileTimeout: 2 * time.Minute,
			ReconnectMin:   500 * time.Millisecond,
			ReconnectMax:   30 * time.Second,
		},
		Client: ClientConfig{
			Timeout:  30 * time.Second,
			Insecure: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from configPath (or the default search
// path/name if empty), applying RC_-prefixed environment overrides on
// top, matching the teacher's HG_ convention renamed to relaycc's.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("relaycc")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/relaycc")
		v.AddConfigPath("/etc/relaycc")
	}

	v.SetEnvPrefix("RC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("producer.grpc_port", cfg.Producer.GRPCPort)
	v.SetDefault("producer.bind_addr", cfg.Producer.BindAddr)
	v.SetDefault("producer.dashboard_port", cfg.Producer.DashboardPort)
	v.SetDefault("producer.mdns_enable", cfg.Producer.MDNSEnable)
	v.SetDefault("producer.scheduler", cfg.Producer.Scheduler)

	v.SetDefault("worker.insecure", cfg.Worker.Insecure)
	v.SetDefault("worker.compile_timeout", cfg.Worker.CompileTimeout)
	v.SetDefault("worker.reconnect_min", cfg.Worker.ReconnectMin)
	v.SetDefault("worker.reconnect_max", cfg.Worker.ReconnectMax)

	v.SetDefault("client.timeout", cfg.Client.Timeout)
	v.SetDefault("client.insecure", cfg.Client.Insecure)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// WriteExample writes an annotated example config file to path.
func WriteExample(path string) error {
	example := `# relaycc configuration

producer:
  grpc_port: 9002
  bind_addr: 127.0.0.1
  dashboard_port: 8090
  mdns_enable: true
  scheduler: round_robin   # or least_busy
  auth_token: ""
  # tls:
  #   enabled: true
  #   cert_file: /path/to/cert.pem
  #   key_file: /path/to/key.pem

worker:
  producer_addr: ""        # empty: discover via mDNS
  lang: c                  # c, cpp, rust
  version: ""
  procarch: ""
  insecure: true
  compile_timeout: 2m
  reconnect_min: 500ms
  reconnect_max: 30s
  auth_token: ""

client:
  producer_addr: ""        # empty: discover via mDNS
  timeout: 30s
  insecure: true
  auth_token: ""

log:
  level: info               # debug, info, warn, error
  format: console           # console, json
  # file: /var/log/relaycc.log
`
	return os.WriteFile(path, []byte(example), 0o644)
}
