package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gamejobs-crawler/internal/filter"
	"github.com/JakeFAU/gamejobs-crawler/internal/source"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GAMEJOBS_STORE_URL", "https://db.example.co/rest/v1/jobs")
	t.Setenv("GAMEJOBS_STORE_KEY", "anon-key")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, BackendREST, cfg.Store.Backend)
	require.Equal(t, "https://db.example.co/rest/v1/jobs", cfg.Store.URL)
	require.Equal(t, "Asia/Seoul", cfg.Run.Timezone)
	require.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, 3, cfg.HTTP.MaxRetries)
	require.Equal(t, 2*time.Minute, cfg.Run.SyncGrace)
	require.Equal(t, 50, cfg.Sync.BatchSize)
	require.Equal(t, 30, cfg.Sync.RetentionDays)
	require.Equal(t, 6*time.Hour, cfg.Schedule.Interval)
	require.Equal(t, 4, cfg.Filter.SeniorYears)
	require.Equal(t, source.Names(), cfg.EnabledSources())

	wanted, ok := cfg.SourceOptions(source.Wanted)
	require.True(t, ok)
	defaults, _ := source.Defaults(source.Wanted)
	require.Equal(t, defaults, wanted)
	require.Equal(t, "Asia/Seoul", cfg.Location().String())
	require.Equal(t, ":8080", cfg.Addr())
}

func TestLoadLegacyEnvNames(t *testing.T) {
	t.Setenv("SUPABASE_API_URL", "https://legacy.example.co/rest/v1/jobs")
	t.Setenv("SUPABASE_KEY", "legacy-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "https://legacy.example.co/rest/v1/jobs", cfg.Store.URL)
	require.Equal(t, "legacy-key", cfg.Store.Key)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("GAMEJOBS_STORE_URL", "")
	t.Setenv("GAMEJOBS_STORE_KEY", "")
	t.Setenv("SUPABASE_API_URL", "")
	t.Setenv("SUPABASE_KEY", "")

	_, err := Load("")
	require.ErrorIs(t, err, ErrMissingStoreCredentials)

	cfg, err := Load("", WithOverride("store.backend", BackendMemory))
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.Store.Backend)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: true
run:
  timezone: UTC
  timeout: 20m
http:
  timeout: 30s
  max_retries: 1
store:
  backend: sqlite
  sqlite_path: /tmp/jobs.db
sync:
  batch_size: 10
filter:
  senior_years: 5
  conditional_years_min: 3
  exclude: ["병원"]
sources:
  wanted:
    pages: 2
    queries: ["518", "872"]
  sogang:
    enabled: false
server:
  port: 9090
schedule:
  interval: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.True(t, cfg.Logging.Development)
	require.Equal(t, 20*time.Minute, cfg.Run.Timeout)
	require.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, BackendSQLite, cfg.Store.Backend)
	require.Equal(t, "/tmp/jobs.db", cfg.Store.SQLitePath)
	require.Equal(t, 10, cfg.Sync.BatchSize)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, time.Hour, cfg.Schedule.Interval)

	rules := cfg.Filter.Rules()
	require.Equal(t, 5, rules.SeniorYears)
	require.Equal(t, 3, rules.ConditionalYearsMin)
	require.Equal(t, []string{"병원"}, rules.Exclude)
	require.Equal(t, filter.DefaultRules().Roles, rules.Roles)

	wanted, _ := cfg.SourceOptions(source.Wanted)
	require.Equal(t, 2, wanted.Pages)
	require.Equal(t, []string{"518", "872"}, wanted.Queries)
	require.Equal(t, 500*time.Millisecond, wanted.Pacing)
	require.NotContains(t, cfg.EnabledSources(), source.Sogang)
	require.Contains(t, cfg.EnabledSources(), source.Saramin)
}

func TestLoadEnvOverridesSource(t *testing.T) {
	t.Setenv("GAMEJOBS_STORE_BACKEND", BackendMemory)
	t.Setenv("GAMEJOBS_SOURCES_SARAMIN_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotContains(t, cfg.EnabledSources(), source.Saramin)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GAMEJOBS_DOTENV_PROBE=from-file\n"), 0o600))
	t.Setenv("GAMEJOBS_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("GAMEJOBS_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	require.Equal(t, "from-file", os.Getenv("GAMEJOBS_DOTENV_PROBE"))
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Run:      RunConfig{Timezone: "UTC"},
		HTTP:     HTTPConfig{Timeout: time.Second},
		Store:    StoreConfig{Backend: BackendMemory},
		Sync:     SyncConfig{BatchSize: 50, RetentionDays: 30},
		Filter:   FilterConfig{SeniorYears: 4, ConditionalYearsMin: 2},
		Server:   ServerConfig{Port: 8080},
		Schedule: ScheduleConfig{Interval: time.Hour},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout"},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"unknown timezone", func(c *Config) { c.Run.Timezone = "Mars/Olympus" }, "run.timezone"},
		{"timeout without grace", func(c *Config) { c.Run.Timeout = time.Minute }, "run.sync_grace"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"rest without key", func(c *Config) { c.Store = StoreConfig{Backend: BackendREST, URL: "https://x"} }, "store.url"},
		{"postgres without dsn", func(c *Config) { c.Store = StoreConfig{Backend: BackendPostgres} }, "store.dsn"},
		{"sqlite without path", func(c *Config) { c.Store = StoreConfig{Backend: BackendSQLite} }, "store.sqlite_path"},
		{"zero batch", func(c *Config) { c.Sync.BatchSize = 0 }, "sync.batch_size"},
		{"zero retention", func(c *Config) { c.Sync.RetentionDays = 0 }, "sync.retention_days"},
		{"zero senior years", func(c *Config) { c.Filter.SeniorYears = 0 }, "filter.senior_years"},
		{"conditional above senior", func(c *Config) { c.Filter.ConditionalYearsMin = 9 }, "filter.conditional_years_min"},
		{"unknown source", func(c *Config) {
			c.Sources = map[string]SourceConfig{"indeed": {Enabled: true, Pages: 1}}
		}, "sources.indeed"},
		{"enabled source without pages", func(c *Config) {
			c.Sources = map[string]SourceConfig{source.Wanted: {Enabled: true}}
		}, "sources.wanted.pages"},
		{"zero interval", func(c *Config) { c.Schedule.Interval = 0 }, "schedule.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
