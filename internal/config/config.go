// Package config loads genesis settings from flags, environment, an optional
// YAML file and built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/genesis/pkg/broadcast"
	"github.com/go-go-golems/genesis/pkg/logging"
	"github.com/go-go-golems/genesis/pkg/registry"
)

const EnvPrefix = "GENESIS"

type ServerSettings struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	OriginPatterns []string `mapstructure:"origin-patterns"`
}

type BroadcastSettings struct {
	Interval    time.Duration `mapstructure:"interval"`
	SendTimeout time.Duration `mapstructure:"send-timeout"`
}

type EngineSettings struct {
	Provider         string   `mapstructure:"provider"`
	Mode             string   `mapstructure:"mode"`
	EntropyLevel     int      `mapstructure:"entropy-level"`
	Frequency        float64  `mapstructure:"frequency"`
	PhantomAnalytics bool     `mapstructure:"phantom-analytics"`
	ShadowTendrils   bool     `mapstructure:"shadow-tendrils"`
	Patterns         []string `mapstructure:"patterns"`
}

type BackendSettings struct {
	Catalog string        `mapstructure:"catalog"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ClientSettings struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Server    ServerSettings    `mapstructure:"server"`
	Broadcast BroadcastSettings `mapstructure:"broadcast"`
	Engine    EngineSettings    `mapstructure:"engine"`
	Backend   BackendSettings   `mapstructure:"backend"`
	Client    ClientSettings    `mapstructure:"client"`
	Log       logging.Settings  `mapstructure:"log"`
}

// SetDefaults registers every known key on v. AutomaticEnv only resolves
// keys viper already knows about, so this must run before Load.
func SetDefaults(v *viper.Viper) {
	d := registry.DefaultConfiguration()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.origin-patterns", []string{})
	v.SetDefault("broadcast.interval", broadcast.DefaultInterval)
	v.SetDefault("broadcast.send-timeout", broadcast.DefaultSendTimeout)
	v.SetDefault("engine.provider", string(d.Provider))
	v.SetDefault("engine.mode", string(d.Mode))
	v.SetDefault("engine.entropy-level", d.EntropyLevel)
	v.SetDefault("engine.frequency", d.Frequency)
	v.SetDefault("engine.phantom-analytics", d.PhantomAnalytics)
	v.SetDefault("engine.shadow-tendrils", d.ShadowTendrils)
	v.SetDefault("engine.patterns", d.Patterns)
	v.SetDefault("backend.catalog", "")
	v.SetDefault("backend.timeout", 60*time.Second)
	v.SetDefault("client.url", "http://127.0.0.1:8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "could not load %s", p)
		}
	}
	return nil
}

// DefaultConfigFiles lists the files searched when no --config is given.
func DefaultConfigFiles() []string {
	files := []string{"genesis.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".genesis", "config.yaml"))
	}
	return files
}

// Load reads configFile (or the first existing default file) into v and
// decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile == "" {
		for _, f := range DefaultConfigFiles() {
			if _, err := os.Stat(f); err == nil {
				configFile = f
				break
			}
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "could not read config file %s", configFile)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "could not decode configuration")
	}
	return &c, nil
}

// EngineConfiguration turns the engine settings into a validated startup
// configuration.
func (c *Config) EngineConfiguration() (registry.Configuration, error) {
	p, err := registry.ParseProvider(c.Engine.Provider)
	if err != nil {
		return registry.Configuration{}, errors.Wrap(err, "engine.provider")
	}
	m, err := registry.ParseMode(c.Engine.Mode)
	if err != nil {
		return registry.Configuration{}, errors.Wrap(err, "engine.mode")
	}
	cfg := registry.Configuration{
		Provider:         p,
		Mode:             m,
		EntropyLevel:     c.Engine.EntropyLevel,
		Frequency:        c.Engine.Frequency,
		PhantomAnalytics: c.Engine.PhantomAnalytics,
		ShadowTendrils:   c.Engine.ShadowTendrils,
		Patterns:         c.Engine.Patterns,
	}
	if err := cfg.Validate(); err != nil {
		return registry.Configuration{}, err
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
