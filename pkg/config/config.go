package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/umputun/dealscope/pkg/domain"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:dealscope.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Schedule struct {
		FetchInterval    int `yaml:"fetch_interval" json:"fetch_interval" jsonschema:"default=30,description=Source discovery interval in minutes"`
		EvaluateInterval int `yaml:"evaluate_interval" json:"evaluate_interval" jsonschema:"default=10,description=Evaluation interval in minutes"`
		ProcessInterval  int `yaml:"process_interval" json:"process_interval" jsonschema:"default=5,description=Queue processing interval in minutes"`
		PublishInterval  int `yaml:"publish_interval" json:"publish_interval" jsonschema:"default=60,description=Publishing interval in minutes"`
		MaxWorkers       int `yaml:"max_workers" json:"max_workers" jsonschema:"default=5,description=Maximum concurrent workers"`
		RunDeadline      int `yaml:"run_deadline" json:"run_deadline" jsonschema:"default=10,description=Per-run deadline in minutes"`
	} `yaml:"schedule" json:"schedule" jsonschema:"description=Scheduler configuration"`

	AI AIConfig `yaml:"ai" json:"ai" jsonschema:"description=AI settings for deal evaluation and content generation"`

	Evaluation struct {
		ScoreThreshold  float64 `yaml:"score_threshold" json:"score_threshold" jsonschema:"default=60,minimum=0,maximum=100,description=Minimum score to enqueue a deal for content generation"`
		HeuristicWeight float64 `yaml:"heuristic_weight" json:"heuristic_weight" jsonschema:"default=0.75,description=Weight applied to scores of heuristically extracted deals"`
	} `yaml:"evaluation" json:"evaluation" jsonschema:"description=Evaluation settings"`

	Queue struct {
		MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts" jsonschema:"default=3,description=Maximum processing attempts per queue item"`
		RetryDelay   time.Duration `yaml:"retry_delay" json:"retry_delay" jsonschema:"default=5m,description=Delay before a failed item is retried"`
		ReclaimAfter time.Duration `yaml:"reclaim_after" json:"reclaim_after" jsonschema:"default=15m,description=Age after which a stuck processing item is reclaimed"`
	} `yaml:"queue" json:"queue" jsonschema:"description=Processing queue settings"`

	Publishing struct {
		Mode        string `yaml:"mode" json:"mode" jsonschema:"default=manual,enum=automatic,enum=manual,description=Publishing mode"`
		MinArticles int    `yaml:"min_articles" json:"min_articles" jsonschema:"default=1,description=Minimum articles per publish batch"`
		MaxArticles int    `yaml:"max_articles" json:"max_articles" jsonschema:"default=10,description=Maximum articles per publish batch"`
	} `yaml:"publishing" json:"publishing" jsonschema:"description=Publishing policy"`

	Sources    []SourceSeed    `yaml:"sources" json:"sources" jsonschema:"description=Source definitions seeded into the store at startup"`
	Affiliates []AffiliateSeed `yaml:"affiliates" json:"affiliates" jsonschema:"description=Affiliate programs seeded into the store at startup"`
}

// AIConfig holds AI provider settings. An empty APIKey is the canonical
// fallback trigger, not a configuration error.
type AIConfig struct {
	Endpoint    string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible API endpoint"`
	APIKey      string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model       string        `yaml:"model" json:"model" jsonschema:"default=gpt-4o-mini,description=Model name"`
	Temperature float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=1000,description=Maximum tokens in response"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Request timeout"`
	Retries     int           `yaml:"retries" json:"retries" jsonschema:"default=3,description=Attempts per AI call before falling back"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay" jsonschema:"default=2s,description=Delay between AI call attempts"`
}

// Enabled reports whether the AI path is configured at all
func (c AIConfig) Enabled() bool { return c.APIKey != "" }

// SourceSeed is a source definition from the config file
type SourceSeed struct {
	Kind         domain.SourceKind     `yaml:"kind" json:"kind" jsonschema:"enum=catalog,enum=feed,enum=api,enum=scraper"`
	Name         string                `yaml:"name" json:"name"`
	Active       bool                  `yaml:"active" json:"active"`
	SyncInterval int                   `yaml:"sync_interval" json:"sync_interval" jsonschema:"default=60,description=Sync interval in minutes"`
	Settings     domain.SourceSettings `yaml:"settings" json:"settings"`
}

// AffiliateSeed is an affiliate program definition from the config file
type AffiliateSeed struct {
	Name           string  `yaml:"name" json:"name"`
	URLPattern     string  `yaml:"url_pattern" json:"url_pattern"`
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate"`
	Active         bool    `yaml:"active" json:"active"`
	Priority       int     `yaml:"priority" json:"priority"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// setDefaults fills zero values with defaults
func (c *Config) setDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "file:dealscope.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}

	if c.Schedule.FetchInterval == 0 {
		c.Schedule.FetchInterval = 30
	}
	if c.Schedule.EvaluateInterval == 0 {
		c.Schedule.EvaluateInterval = 10
	}
	if c.Schedule.ProcessInterval == 0 {
		c.Schedule.ProcessInterval = 5
	}
	if c.Schedule.PublishInterval == 0 {
		c.Schedule.PublishInterval = 60
	}
	if c.Schedule.MaxWorkers == 0 {
		c.Schedule.MaxWorkers = 5
	}
	if c.Schedule.RunDeadline == 0 {
		c.Schedule.RunDeadline = 10
	}

	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o-mini"
	}
	if c.AI.Temperature == 0 {
		c.AI.Temperature = 0.3
	}
	if c.AI.MaxTokens == 0 {
		c.AI.MaxTokens = 1000
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 30 * time.Second
	}
	if c.AI.Retries == 0 {
		c.AI.Retries = 3
	}
	if c.AI.RetryDelay == 0 {
		c.AI.RetryDelay = 2 * time.Second
	}

	if c.Evaluation.ScoreThreshold == 0 {
		c.Evaluation.ScoreThreshold = 60
	}
	if c.Evaluation.HeuristicWeight == 0 {
		c.Evaluation.HeuristicWeight = 0.75
	}

	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.RetryDelay == 0 {
		c.Queue.RetryDelay = 5 * time.Minute
	}
	if c.Queue.ReclaimAfter == 0 {
		c.Queue.ReclaimAfter = 15 * time.Minute
	}

	if c.Publishing.Mode == "" {
		c.Publishing.Mode = "manual"
	}
	if c.Publishing.MinArticles == 0 {
		c.Publishing.MinArticles = 1
	}
	if c.Publishing.MaxArticles == 0 {
		c.Publishing.MaxArticles = 10
	}

	for i := range c.Sources {
		if c.Sources[i].SyncInterval == 0 {
			c.Sources[i].SyncInterval = 60
		}
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	// AI key absence is a fallback trigger, not an error
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be between 0 and 2")
	}
	if cfg.AI.Retries < 1 {
		return fmt.Errorf("ai.retries must be at least 1")
	}

	if cfg.Evaluation.ScoreThreshold < 0 || cfg.Evaluation.ScoreThreshold > 100 {
		return fmt.Errorf("evaluation.score_threshold must be between 0 and 100")
	}
	if cfg.Evaluation.HeuristicWeight < 0 || cfg.Evaluation.HeuristicWeight > 1 {
		return fmt.Errorf("evaluation.heuristic_weight must be between 0 and 1")
	}

	if cfg.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1")
	}

	if cfg.Publishing.Mode != "automatic" && cfg.Publishing.Mode != "manual" {
		return fmt.Errorf("publishing.mode must be automatic or manual")
	}
	if cfg.Publishing.MinArticles > cfg.Publishing.MaxArticles {
		return fmt.Errorf("publishing.min_articles must not exceed max_articles")
	}

	for i, src := range cfg.Sources {
		if !src.Kind.Valid() {
			return fmt.Errorf("sources[%d]: unknown kind %q", i, src.Kind)
		}
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
	}

	for i, aff := range cfg.Affiliates {
		if aff.Name == "" {
			return fmt.Errorf("affiliates[%d]: name is required", i)
		}
		if aff.URLPattern == "" {
			return fmt.Errorf("affiliates[%d]: url_pattern is required", i)
		}
	}

	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// GetAIConfig returns AI configuration
func (c *Config) GetAIConfig() AIConfig {
	return c.AI
}
