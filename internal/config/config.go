package config

import (
	"os"
	"sync"

	"github.com/earn9/autopsy/internal/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel      = "info"
	DefaultWriteInterval = 1 // minutes
	DefaultLockTimeout   = 5 // minutes
	DefaultDatabaseName  = "ServicesHealthMonitor"
	DefaultDatabasePort  = 5432
	DefaultConsulAddress = "127.0.0.1:8500"

	configName = "healthmond"
	configType = "toml"
	configEnv  = "HEALTHMOND_CONFIG"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
	Verbose  bool   `mapstructure:"verbose"`

	// Enabled is persisted back to the config file by SaveEnabled so the
	// monitor keeps its state across restarts.
	Enabled bool `mapstructure:"enabled"`

	// WriteInterval is the flush period in minutes.
	WriteInterval int `mapstructure:"write_interval"`
	// LockTimeout bounds distributed lock acquisition, in minutes.
	LockTimeout int `mapstructure:"lock_timeout"`

	Database DatabaseConfig `mapstructure:"database"`
	Consul   ConsulConfig   `mapstructure:"consul"`
}

var (
	mu sync.Mutex
	v  *viper.Viper
)

// Load reads configuration from flags, an optional TOML config file and
// defaults, in that order of precedence. The config file is taken from
// the HEALTHMOND_CONFIG environment variable when set, otherwise
// searched for in /etc and the working directory.
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	errFactory := errors.New()

	flags := pflag.NewFlagSet("healthmond", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.Int("write-interval", 0, "Minutes between metric database writes")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v = viper.New()
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("enabled", false)
	v.SetDefault("write_interval", DefaultWriteInterval)
	v.SetDefault("lock_timeout", DefaultLockTimeout)
	v.SetDefault("database.port", DefaultDatabasePort)
	v.SetDefault("database.name", DefaultDatabaseName)
	v.SetDefault("consul.address", DefaultConsulAddress)

	if path := os.Getenv(configEnv); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is tolerated; a present but unreadable
		// one is a hard failure.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file: "+err.Error())
		}
	}

	// Flags set on the command line override file values
	if f := flags.Lookup("log-level"); f.Changed {
		v.Set("log_level", f.Value.String())
	}
	if f := flags.Lookup("debug"); f.Changed {
		v.Set("debug", true)
	}
	if f := flags.Lookup("verbose"); f.Changed {
		v.Set("verbose", true)
	}
	if f := flags.Lookup("write-interval"); f.Changed {
		v.Set("write_interval", f.Value.String())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.WriteInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.WriteInterval)
	}
	if c.LockTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.LockTimeout)
	}
	if c.Database.Name == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "database name must not be empty")
	}
	if c.Database.Host != "" && c.Database.User == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "database user must not be empty")
	}

	return nil
}

// IsMultiInstance reports whether the shared database and the
// coordination service are both configured. The health monitor refuses
// to activate without them.
func (c *Config) IsMultiInstance() bool {
	return c.Database.Host != "" && c.Consul.Address != ""
}

// SaveEnabled persists the monitor enabled flag back to the config file
// so it is applied again on the next start.
func SaveEnabled(enabled bool) error {
	mu.Lock()
	defer mu.Unlock()

	if v == nil || v.ConfigFileUsed() == "" {
		// Running without a config file; nothing to persist.
		return nil
	}

	v.Set("enabled", enabled)
	if err := v.WriteConfig(); err != nil {
		return errors.New().Wrap(errors.ErrWriteConfig, err)
	}

	return nil
}

// Watch re-reads the config file whenever it changes on disk and hands
// the fresh Config to onChange. Invalid edits are dropped.
func Watch(onChange func(*Config)) {
	mu.Lock()
	defer mu.Unlock()

	if v == nil {
		return
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		mu.Lock()
		cfg := &Config{}
		err := v.Unmarshal(cfg)
		mu.Unlock()

		if err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			return
		}

		// The mutex is not held here, so the callback may call back into
		// this package (SaveEnabled in particular).
		onChange(cfg)
	})
	v.WatchConfig()
}
