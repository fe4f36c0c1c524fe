// Package config loads the bot configuration: credentials from the
// environment, everything else from an optional YAML file, plus the
// runtime-tunable trading parameters.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// ModePaper simulates fills against the live API without placing orders.
	ModePaper = "paper"
	// ModeLive places real orders.
	ModeLive = "live"

	defaultHost       = "https://api.elections.kalshi.com"
	defaultWSHost     = "wss://api.elections.kalshi.com"
	defaultSeries     = "KXBTC15M"
	defaultDataDir    = "./wal"
	defaultPrivateKey = "./kalshi_private_key.pem"
)

// Config is the full bot configuration.
type Config struct {
	Mode   string
	Series string
	Host   string
	WSHost string

	KalshiKeyID          string
	KalshiPrivateKeyPEM  []byte
	AnthropicAPIKey      string
	AnthropicModel       string

	DataDir string

	Tunables Tunables
}

type configYAML struct {
	Mode                 string `yaml:"mode"`
	Series               string `yaml:"series"`
	Host                 string `yaml:"host"`
	WSHost               string `yaml:"ws_host"`
	KalshiPrivateKeyPath string `yaml:"kalshi_private_key_path"`
	AnthropicModel       string `yaml:"anthropic_model"`
	DataDir              string `yaml:"data_dir"`

	Tunables map[string]string `yaml:"tunables"`
}

// Get parses flags and builds the configuration. Credentials always come
// from the environment, never from the file.
func Get() (*Config, error) {
	path := flag.String("config", "", "path to yaml config")
	flag.Parse()
	return Load(*path)
}

// Load builds the configuration from an optional YAML file path.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Mode:     ModePaper,
		Series:   defaultSeries,
		Host:     defaultHost,
		WSHost:   defaultWSHost,
		DataDir:  defaultDataDir,
		Tunables: DefaultTunables(),
	}
	keyPath := defaultPrivateKey

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		var fileCfg configYAML
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return nil, errors.Wrap(err, "decode config file")
		}
		if fileCfg.Mode != "" {
			cfg.Mode = fileCfg.Mode
		}
		if fileCfg.Series != "" {
			cfg.Series = fileCfg.Series
		}
		if fileCfg.Host != "" {
			cfg.Host = fileCfg.Host
		}
		if fileCfg.WSHost != "" {
			cfg.WSHost = fileCfg.WSHost
		}
		if fileCfg.DataDir != "" {
			cfg.DataDir = fileCfg.DataDir
		}
		if fileCfg.KalshiPrivateKeyPath != "" {
			keyPath = fileCfg.KalshiPrivateKeyPath
		}
		cfg.AnthropicModel = fileCfg.AnthropicModel
		if len(fileCfg.Tunables) > 0 {
			cfg.Tunables, _ = cfg.Tunables.Apply(fileCfg.Tunables)
		}
	}

	if env := os.Getenv("KALSHI_ENV"); env != "" {
		cfg.Mode = normalizeMode(env)
	}
	cfg.KalshiKeyID = os.Getenv("KALSHI_API_KEY_ID")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")

	// The key itself may arrive inline via env, else from the path.
	if raw := os.Getenv("KALSHI_PRIVATE_KEY"); raw != "" {
		cfg.KalshiPrivateKeyPEM = []byte(raw)
	} else {
		if envPath := os.Getenv("KALSHI_PRIVATE_KEY_PATH"); envPath != "" {
			keyPath = envPath
		}
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, errors.Wrapf(err, "read private key %s", keyPath)
		}
		cfg.KalshiPrivateKeyPEM = pem
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeMode maps the historical demo/live naming onto paper/live.
func normalizeMode(mode string) string {
	switch mode {
	case "demo", ModePaper:
		return ModePaper
	default:
		return ModeLive
	}
}

func (c *Config) validate() error {
	if c.Mode != ModePaper && c.Mode != ModeLive {
		return errors.Errorf("invalid mode %q, want %q or %q", c.Mode, ModePaper, ModeLive)
	}
	if c.KalshiKeyID == "" {
		return errors.New("KALSHI_API_KEY_ID is not set")
	}
	if c.Series == "" {
		return errors.New("market series is empty")
	}
	return nil
}

// Paper reports whether orders are simulated.
func (c *Config) Paper() bool {
	return c.Mode == ModePaper
}

// PollInterval converts the tunable seconds into a duration.
func (t Tunables) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSeconds) * time.Second
}
