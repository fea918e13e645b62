package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/psantana5/brevets/pkg/acp"
)

// EnvPrefix prefixes every environment override, e.g. BREVETS_SERVER_PORT.
const EnvPrefix = "BREVETS"

type Config struct {
	Server    Server    `mapstructure:"server" json:"server" yaml:"server"`
	Metrics   Metrics   `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Log       Log       `mapstructure:"log" json:"log" yaml:"log"`
	Calc      Calc      `mapstructure:"calc" json:"calc" yaml:"calc"`
	RateLimit RateLimit `mapstructure:"ratelimit" json:"ratelimit" yaml:"ratelimit"`
	Tracing   Tracing   `mapstructure:"tracing" json:"tracing" yaml:"tracing"`
	Shutdown  Shutdown  `mapstructure:"shutdown" json:"shutdown" yaml:"shutdown"`
}

type Server struct {
	Port         int           `mapstructure:"port" json:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" json:"port" yaml:"port"`
}

type Log struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" json:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" json:"json" yaml:"json"`

	// File, when set, receives a copy of everything written to stdout
	File string `mapstructure:"file" json:"file,omitempty" yaml:"file,omitempty"`
}

type Calc struct {
	// Timezone is the IANA zone used to read date/time form fields
	Timezone string `mapstructure:"timezone" json:"timezone" yaml:"timezone"`

	// Rules is "reference" or "acp"
	Rules string `mapstructure:"rules" json:"rules" yaml:"rules"`
}

type RateLimit struct {
	Enabled bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	RPS     float64 `mapstructure:"rps" json:"rps" yaml:"rps"`
	Burst   int     `mapstructure:"burst" json:"burst" yaml:"burst"`

	// Buckets idle for longer than IdleTTL are evicted
	IdleTTL time.Duration `mapstructure:"idle_ttl" json:"idle_ttl" yaml:"idle_ttl"`

	// TrustProxy keys buckets by X-Forwarded-For instead of the remote address
	TrustProxy bool `mapstructure:"trust_proxy" json:"trust_proxy" yaml:"trust_proxy"`
}

type Tracing struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	Insecure    bool   `mapstructure:"insecure" json:"insecure" yaml:"insecure"`
	Environment string `mapstructure:"environment" json:"environment" yaml:"environment"`
}

type Shutdown struct {
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")

	v.SetDefault("calc.timezone", "UTC")
	v.SetDefault("calc.rules", string(acp.RulesReference))

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 20.0)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("ratelimit.idle_ttl", 10*time.Minute)
	v.SetDefault("ratelimit.trust_proxy", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("shutdown.timeout", 15*time.Second)
}

// Load reads configuration from cfgFile, or from brevets.yaml in
// $HOME/.brevets or the working directory when cfgFile is empty. Environment
// variables override file values. A missing default file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".brevets"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("brevets")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail at startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			errs = append(errs, fmt.Errorf("metrics.port %d out of range", c.Metrics.Port))
		}
		if c.Metrics.Port == c.Server.Port {
			errs = append(errs, fmt.Errorf("metrics.port must differ from server.port (%d)", c.Server.Port))
		}
	}
	if _, err := acp.ParseRules(c.Calc.Rules); err != nil {
		errs = append(errs, fmt.Errorf("calc.rules: %w", err))
	}
	if _, err := time.LoadLocation(c.Calc.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("calc.timezone: %w", err))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("ratelimit.rps and ratelimit.burst must be positive"))
	}
	if c.Shutdown.Timeout <= 0 {
		errs = append(errs, errors.New("shutdown.timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the configured calculation time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Calc.Timezone)
}

// CalcRules returns the configured rule set.
func (c *Config) CalcRules() (acp.Rules, error) {
	return acp.ParseRules(c.Calc.Rules)
}
