// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/gamejobs-crawler/internal/filter"
	"github.com/JakeFAU/gamejobs-crawler/internal/source"
)

// Store backends.
const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// ErrMissingStoreCredentials is returned when the REST backend lacks a URL or key.
var ErrMissingStoreCredentials = errors.New("store.url and store.key are required for the rest backend")

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig           `mapstructure:"logging"`
	Run      RunConfig               `mapstructure:"run"`
	HTTP     HTTPConfig              `mapstructure:"http"`
	Store    StoreConfig             `mapstructure:"store"`
	Sync     SyncConfig              `mapstructure:"sync"`
	Filter   FilterConfig            `mapstructure:"filter"`
	Sources  map[string]SourceConfig `mapstructure:"sources"`
	Server   ServerConfig            `mapstructure:"server"`
	Schedule ScheduleConfig          `mapstructure:"schedule"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name. Empty keeps the mode's default.
	Level string `mapstructure:"level"`
}

// RunConfig controls a single ingestion run.
type RunConfig struct {
	// Timezone decides what "today" is for deadlines and cleanup.
	Timezone string `mapstructure:"timezone"`
	// Timeout bounds a whole run; zero disables it.
	Timeout time.Duration `mapstructure:"timeout"`
	// SyncGrace bounds the sync that still runs after Timeout fires.
	SyncGrace time.Duration `mapstructure:"sync_grace"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	Timeout          time.Duration `mapstructure:"timeout"`
	TimeoutExtension time.Duration `mapstructure:"timeout_extension"`
	MaxRetries       int           `mapstructure:"max_retries"`
	BackoffInitial   time.Duration `mapstructure:"backoff_initial"`
	// Pacing applies to hosts without a source-specific interval.
	Pacing time.Duration `mapstructure:"pacing"`
}

// StoreConfig selects and configures the posting store.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// URL is the full table endpoint for the rest backend.
	URL        string        `mapstructure:"url"`
	Key        string        `mapstructure:"key"`
	Table      string        `mapstructure:"table"`
	DSN        string        `mapstructure:"dsn"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SyncConfig controls the synchronizer.
type SyncConfig struct {
	BatchSize      int `mapstructure:"batch_size"`
	RetentionDays  int `mapstructure:"retention_days"`
	ExistingWindow int `mapstructure:"existing_window"`
}

// FilterConfig mirrors filter.Rules.
type FilterConfig struct {
	Exclude             []string            `mapstructure:"exclude"`
	Senior              []string            `mapstructure:"senior"`
	EntryMarkers        []string            `mapstructure:"entry_markers"`
	Context             []string            `mapstructure:"context"`
	Roles               []string            `mapstructure:"roles"`
	ContextGuards       map[string][]string `mapstructure:"context_guards"`
	SeniorYears         int                 `mapstructure:"senior_years"`
	ConditionalYearsMin int                 `mapstructure:"conditional_years_min"`
}

// SourceConfig overrides one source's crawl options.
type SourceConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Pages   int           `mapstructure:"pages"`
	Pacing  time.Duration `mapstructure:"pacing"`
	Queries []string      `mapstructure:"queries"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ScheduleConfig controls periodic runs in serve mode.
type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// Immediate runs once at startup before the first tick.
	Immediate bool `mapstructure:"immediate"`
}

// Option adjusts the viper instance before unmarshalling.
type Option func(v *viper.Viper)

// WithOverride forces key to value, taking precedence over files and environment.
func WithOverride(key string, value any) Option {
	return func(v *viper.Viper) {
		v.Set(key, value)
	}
}

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are ignored; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string, opts ...Option) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GAMEJOBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for _, opt := range opts {
		opt(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindLegacyEnv accepts the variable names used by earlier deployments.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"store.url": {"GAMEJOBS_STORE_URL", "SUPABASE_API_URL"},
		"store.key": {"GAMEJOBS_STORE_KEY", "SUPABASE_KEY"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("run.timezone", "Asia/Seoul")
	v.SetDefault("run.timeout", 0)
	v.SetDefault("run.sync_grace", 2*time.Minute)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.timeout_extension", 5*time.Second)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial", time.Second)
	v.SetDefault("http.pacing", time.Second)
	v.SetDefault("store.backend", BackendREST)
	v.SetDefault("store.url", "")
	v.SetDefault("store.key", "")
	v.SetDefault("store.table", "jobs")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.sqlite_path", "gamejobs.db")
	v.SetDefault("store.timeout", 30*time.Second)
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.retention_days", 30)
	v.SetDefault("sync.existing_window", 1000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("schedule.interval", 6*time.Hour)
	v.SetDefault("schedule.immediate", true)

	rules := filter.DefaultRules()
	v.SetDefault("filter.exclude", rules.Exclude)
	v.SetDefault("filter.senior", rules.Senior)
	v.SetDefault("filter.entry_markers", rules.EntryMarkers)
	v.SetDefault("filter.context", rules.Context)
	v.SetDefault("filter.roles", rules.Roles)
	v.SetDefault("filter.context_guards", rules.ContextGuards)
	v.SetDefault("filter.senior_years", rules.SeniorYears)
	v.SetDefault("filter.conditional_years_min", rules.ConditionalYearsMin)

	for _, name := range source.Names() {
		opts, _ := source.Defaults(name)
		prefix := "sources." + name + "."
		v.SetDefault(prefix+"enabled", opts.Enabled)
		v.SetDefault(prefix+"pages", opts.Pages)
		v.SetDefault(prefix+"pacing", opts.Pacing)
		v.SetDefault(prefix+"queries", opts.Queries)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if _, err := time.LoadLocation(c.Run.Timezone); err != nil {
		return fmt.Errorf("run.timezone %q: %w", c.Run.Timezone, err)
	}
	if c.Run.Timeout < 0 {
		return fmt.Errorf("run.timeout must be >= 0")
	}
	if c.Run.Timeout > 0 && c.Run.SyncGrace <= 0 {
		return fmt.Errorf("run.sync_grace must be > 0 when run.timeout is set")
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be > 0")
	}
	if c.Sync.RetentionDays <= 0 {
		return fmt.Errorf("sync.retention_days must be > 0")
	}
	if c.Filter.SeniorYears <= 0 {
		return fmt.Errorf("filter.senior_years must be > 0")
	}
	if c.Filter.ConditionalYearsMin < 0 || c.Filter.ConditionalYearsMin > c.Filter.SeniorYears {
		return fmt.Errorf("filter.conditional_years_min must be between 0 and filter.senior_years")
	}
	for _, name := range sortedKeys(c.Sources) {
		src := c.Sources[name]
		if _, ok := source.Defaults(name); !ok {
			return fmt.Errorf("sources.%s: unknown source", name)
		}
		if src.Enabled && src.Pages <= 0 {
			return fmt.Errorf("sources.%s.pages must be > 0", name)
		}
	}
	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be > 0")
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Backend {
	case BackendREST:
		if strings.TrimSpace(s.URL) == "" || strings.TrimSpace(s.Key) == "" {
			return ErrMissingStoreCredentials
		}
	case BackendPostgres:
		if s.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	case BackendSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend %q is not one of rest, postgres, sqlite, memory", s.Backend)
	}
	return nil
}

// Rules converts the filter section into filter.Rules.
func (f FilterConfig) Rules() filter.Rules {
	return filter.Rules{
		Exclude:             f.Exclude,
		Senior:              f.Senior,
		EntryMarkers:        f.EntryMarkers,
		Context:             f.Context,
		Roles:               f.Roles,
		ContextGuards:       f.ContextGuards,
		SeniorYears:         f.SeniorYears,
		ConditionalYearsMin: f.ConditionalYearsMin,
	}
}

// SourceOptions returns the crawl options for name, layered over the built-in defaults.
func (c Config) SourceOptions(name string) (source.Options, bool) {
	opts, ok := source.Defaults(name)
	if !ok {
		return source.Options{}, false
	}
	src, ok := c.Sources[name]
	if !ok {
		return opts, true
	}
	opts.Enabled = src.Enabled
	if src.Pages > 0 {
		opts.Pages = src.Pages
	}
	if src.Pacing > 0 {
		opts.Pacing = src.Pacing
	}
	if len(src.Queries) > 0 {
		opts.Queries = append([]string(nil), src.Queries...)
	}
	return opts, true
}

// EnabledSources lists the enabled sources in run order.
func (c Config) EnabledSources() []string {
	var names []string
	for _, name := range source.Names() {
		if opts, _ := c.SourceOptions(name); opts.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// Location returns the configured run timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Run.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr is the listen address for serve mode.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
