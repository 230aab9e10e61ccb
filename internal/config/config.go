// Package config loads service configuration from configs/config.yml and
// SENTINEL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	envPrefix   = "SENTINEL"
	defaultName = "config"
	defaultDir  = "configs"

	// DefaultProfile is used for categories without their own profile.
	DefaultProfile = "default"
)

type Config struct {
	Port      string          `mapstructure:"port"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	UnitTimeout   time.Duration `mapstructure:"unit_timeout"`
	Workers       int           `mapstructure:"workers"`
	SweepOnStart  bool          `mapstructure:"sweep_on_start"`
}

// Threshold bounds a metric. A nil side is unbounded.
type Threshold struct {
	Min *float64 `mapstructure:"min"`
	Max *float64 `mapstructure:"max"`
}

type Profile struct {
	Metric               string  `mapstructure:"metric"`
	Baseline             float64 `mapstructure:"baseline"`
	Noise                float64 `mapstructure:"noise"`
	ExcursionProbability float64 `mapstructure:"excursion_probability"`
	ExcursionMagnitude   float64 `mapstructure:"excursion_magnitude"`
}

// TelemetryConfig map keys are lowercased by viper.
type TelemetryConfig struct {
	Seed       uint64               `mapstructure:"seed"`
	Thresholds map[string]Threshold `mapstructure:"thresholds"`
	Profiles   map[string]Profile   `mapstructure:"profiles"`
}

type AlertsConfig struct {
	AutoResolveFailures bool          `mapstructure:"auto_resolve_failures"`
	UpcomingWindow      time.Duration `mapstructure:"upcoming_window"`
}

type WebSocketConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.path", "sentinel.db")

	v.SetDefault("http.read_header_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sweep_interval", 24*time.Hour)
	v.SetDefault("scheduler.tick_interval", 30*time.Second)
	v.SetDefault("scheduler.unit_timeout", 5*time.Second)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.sweep_on_start", true)

	v.SetDefault("telemetry.seed", 1)
	v.SetDefault("telemetry.profiles.default.metric", "health_index")
	v.SetDefault("telemetry.profiles.default.baseline", 100.0)
	v.SetDefault("telemetry.profiles.default.noise", 5.0)
	v.SetDefault("telemetry.profiles.default.excursion_probability", 0.01)
	v.SetDefault("telemetry.profiles.default.excursion_magnitude", 40.0)
	v.SetDefault("telemetry.thresholds.health_index.min", 70.0)
	v.SetDefault("telemetry.thresholds.health_index.max", 130.0)

	v.SetDefault("alerts.auto_resolve_failures", false)
	v.SetDefault("alerts.upcoming_window", time.Duration(0))

	v.SetDefault("websocket.default_interval", 2*time.Second)
	v.SetDefault("websocket.min_interval", 500*time.Millisecond)
}

// Loader owns a dedicated viper instance so tests and the CLI never share
// global state.
type Loader struct {
	v        *viper.Viper
	explicit bool

	mu      sync.Mutex
	watched bool
}

// NewLoader reads path when non-empty, otherwise configs/config.yml if it exists.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(defaultDir)
		v.SetConfigName(defaultName)
	}
	return &Loader{v: v, explicit: path != ""}
}

// Load reads, decodes and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string { return l.v.ConfigFileUsed() }

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-decodes the file on every write and hands the result to onChange.
// Invalid edits are reported through onError and leave the running config alone.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watched || l.v.ConfigFileUsed() == "" {
		return
	}
	l.watched = true

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Load is a shortcut for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.DB.Path != "", "db.path is required")
	check(c.Scheduler.SweepInterval > 0, "scheduler.sweep_interval must be > 0")
	check(c.Scheduler.TickInterval > 0, "scheduler.tick_interval must be > 0")
	check(c.Scheduler.UnitTimeout > 0, "scheduler.unit_timeout must be > 0")
	check(c.Scheduler.Workers >= 1, "scheduler.workers must be >= 1")
	check(c.Alerts.UpcomingWindow >= 0, "alerts.upcoming_window must be >= 0")
	check(c.Auth.TokenTTL > 0, "auth.token_ttl must be > 0")

	for metric, th := range c.Telemetry.Thresholds {
		if th.Min != nil && th.Max != nil {
			check(*th.Min <= *th.Max, "telemetry.thresholds.%s: min > max", metric)
		}
	}
	_, hasDefault := c.Telemetry.Profiles[DefaultProfile]
	check(hasDefault, "telemetry.profiles.%s is required", DefaultProfile)
	for name, p := range c.Telemetry.Profiles {
		check(strings.TrimSpace(p.Metric) != "", "telemetry.profiles.%s.metric is required", name)
		check(p.Noise >= 0, "telemetry.profiles.%s.noise must be >= 0", name)
		check(p.ExcursionMagnitude >= 0, "telemetry.profiles.%s.excursion_magnitude must be >= 0", name)
		check(p.ExcursionProbability >= 0 && p.ExcursionProbability <= 1,
			"telemetry.profiles.%s.excursion_probability must be within [0,1]", name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
