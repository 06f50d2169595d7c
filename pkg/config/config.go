// Package config loads the newsfeed YAML configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"newsfeed/pkg/domain"
)

const (
	configPathEnv   = "NEWSFEED_CONFIG"
	storeDriverEnv  = "NEWSFEED_STORE"
	databaseDSNEnv  = "DATABASE_DSN"
	mongoURIEnv     = "MONGO_URI"
	supabaseURLEnv  = "SUPABASE_URL"
	supabaseKeyEnv  = "SUPABASE_KEY"
	supabasePassEnv = "SUPABASE_PASSWORD"
)

// Storage drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreSupabase = "supabase"
	StoreMongo    = "mongo"
)

// DefaultSourceInterval applies to sources without an interval.
const DefaultSourceInterval = 15 * time.Minute

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds every tunable of the service.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Sources   []SourceConfig  `yaml:"sources"`
}

// StorageConfig selects and configures the store backend.
type StorageConfig struct {
	Driver        string         `yaml:"driver"`
	DSN           string         `yaml:"dsn"`
	MongoURI      string         `yaml:"mongoUri"`
	MongoDatabase string         `yaml:"mongoDatabase"`
	Supabase      SupabaseConfig `yaml:"supabase"`
	MaxOpenConns  int            `yaml:"maxOpenConns"`
	MaxIdleConns  int            `yaml:"maxIdleConns"`
	ConnMaxLife   time.Duration  `yaml:"connMaxLife"`
}

// SupabaseConfig holds Supabase project credentials.
type SupabaseConfig struct {
	ProjectURL string `yaml:"projectUrl"`
	APIKey     string `yaml:"apiKey"`
	Password   string `yaml:"password"`
}

// SchedulerConfig tunes polling.
type SchedulerConfig struct {
	PoolSize         int           `yaml:"poolSize"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	FailureThreshold int           `yaml:"failureThreshold"`
	MaxBackoff       time.Duration `yaml:"maxBackoff"`
	ClientType       string        `yaml:"clientType"`
}

// RankingConfig tunes popularity scoring.
type RankingConfig struct {
	Gravity         float64       `yaml:"gravity"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	RefreshBatch    int           `yaml:"refreshBatch"`
}

// IngestConfig tunes item derivation.
type IngestConfig struct {
	MaxTags         int                 `yaml:"maxTags"`
	DefaultCategory string              `yaml:"defaultCategory"`
	Keywords        map[string][]string `yaml:"keywords"`
}

// SourceConfig is one polled feed.
type SourceConfig struct {
	ID       string        `yaml:"id"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
	Category string        `yaml:"category"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver:        StoreSQLite,
			DSN:           "file:newsfeed.db?_journal_mode=WAL&_busy_timeout=5000",
			MongoDatabase: "newsfeed",
			MaxOpenConns:  10,
			MaxIdleConns:  5,
			ConnMaxLife:   30 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			PoolSize:         8,
			FetchTimeout:     20 * time.Second,
			FailureThreshold: 3,
			MaxBackoff:       6 * time.Hour,
			ClientType:       "feed",
		},
		Ranking: RankingConfig{
			Gravity:         1.8,
			RefreshInterval: 10 * time.Minute,
			RefreshBatch:    500,
		},
		Ingest: IngestConfig{
			MaxTags:         8,
			DefaultCategory: string(domain.DefaultCategory),
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path falls back to
// $NEWSFEED_CONFIG; with neither set only defaults and env apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path = ResolvePath(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: cannot read %s: %w", path, err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: cannot parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolvePath returns path, or $NEWSFEED_CONFIG when path is empty.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	return os.Getenv(configPathEnv)
}

// Parse decodes raw YAML into cfg. Keys absent from raw keep their current
// value; a present sources list replaces the existing one.
func Parse(raw []byte, cfg *Config) error {
	return yaml.Unmarshal(raw, cfg)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(storeDriverEnv); v != "" {
		c.Storage.Driver = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(mongoURIEnv); v != "" {
		c.Storage.MongoURI = v
	}

	if v := os.Getenv(supabaseURLEnv); v != "" {
		c.Storage.Supabase.ProjectURL = v
	}

	if v := os.Getenv(supabaseKeyEnv); v != "" {
		c.Storage.Supabase.APIKey = v
	}

	if v := os.Getenv(supabasePassEnv); v != "" {
		c.Storage.Supabase.Password = v
	}
}

// Validate checks the config and fills per-source defaults.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case StoreMemory, StoreSQLite, StorePostgres, StoreSupabase:
	case StoreMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("%w: storage.mongoUri is required for the mongo driver", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	}

	g := c.Ranking.Gravity
	if g <= 1 || math.IsNaN(g) || math.IsInf(g, 0) {
		return fmt.Errorf("%w: ranking.gravity must be a finite number > 1, got %v", ErrInvalid, g)
	}
	if c.Ingest.MaxTags < 0 {
		return fmt.Errorf("%w: ingest.maxTags must not be negative", ErrInvalid)
	}
	if _, ok := domain.ParseCategory(c.Ingest.DefaultCategory); !ok {
		return fmt.Errorf("%w: unknown default category %q", ErrInvalid, c.Ingest.DefaultCategory)
	}
	for name := range c.Ingest.Keywords {
		if _, ok := domain.ParseCategory(name); !ok {
			return fmt.Errorf("%w: keywords for unknown category %q", ErrInvalid, name)
		}
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		s.ID = strings.TrimSpace(s.ID)
		s.URL = strings.TrimSpace(s.URL)
		if s.ID == "" {
			return fmt.Errorf("%w: source #%d has no id", ErrInvalid, i+1)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate source id %q", ErrInvalid, s.ID)
		}
		seen[s.ID] = true

		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: source %s has invalid url %q", ErrInvalid, s.ID, s.URL)
		}
		if s.Interval <= 0 {
			s.Interval = DefaultSourceInterval
		}
		if s.Category != "" {
			if _, ok := domain.ParseCategory(s.Category); !ok {
				return fmt.Errorf("%w: source %s has unknown category %q", ErrInvalid, s.ID, s.Category)
			}
		}
	}
	return nil
}

// DomainSources converts the configured sources, preserving order.
func (c Config) DomainSources() []domain.Source {
	out := make([]domain.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		cat, _ := domain.ParseCategory(s.Category)
		out = append(out, domain.Source{
			ID:       s.ID,
			URL:      s.URL,
			Interval: s.Interval,
			Category: cat,
		})
	}
	return out
}

// KeywordOverrides converts Ingest.Keywords to category keys.
func (c Config) KeywordOverrides() map[domain.Category][]string {
	if len(c.Ingest.Keywords) == 0 {
		return nil
	}
	out := make(map[domain.Category][]string, len(c.Ingest.Keywords))
	for name, kws := range c.Ingest.Keywords {
		if cat, ok := domain.ParseCategory(name); ok {
			out[cat] = append(out[cat], kws...)
		}
	}
	return out
}
