package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for all analyst commands.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	LLM       LLMConfig       `yaml:"llm"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	QA        QAConfig        `yaml:"qa"`
	Sync      SyncConfig      `yaml:"sync"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Store.SetDefaults()
	c.Redis.SetDefaults()
	c.LLM.SetDefaults()
	c.Pipeline.SetDefaults()
	c.Tracker.SetDefaults()
	c.QA.SetDefaults()
	c.Sync.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate checks the parts every command depends on. Replica credentials
// are checked at the call sites that actually open them.
func (c *Config) Validate() error {
	if c.Store.Local.Driver != "sqlite3" && c.Store.Local.Driver != "postgres" {
		return fmt.Errorf("store.local.driver must be sqlite3 or postgres, got %q", c.Store.Local.Driver)
	}
	if c.Store.Cloud.Driver != "" && c.Store.Cloud.Driver != "sqlite3" && c.Store.Cloud.Driver != "postgres" {
		return fmt.Errorf("store.cloud.driver must be sqlite3 or postgres, got %q", c.Store.Cloud.Driver)
	}
	if c.Pipeline.MaxQualityRounds < 1 {
		return fmt.Errorf("pipeline.max_quality_rounds must be >= 1, got %d", c.Pipeline.MaxQualityRounds)
	}
	if c.Pipeline.ConfidenceFloor <= 0 || c.Pipeline.ConfidenceFloor > 1 {
		return fmt.Errorf("pipeline.confidence_floor must be in (0,1], got %v", c.Pipeline.ConfidenceFloor)
	}
	for section, n := range c.Pipeline.SectionThresholds {
		if n < 1 {
			return fmt.Errorf("pipeline.section_thresholds.%s must be >= 1, got %d", section, n)
		}
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be >= 1, got %d", c.Sync.BatchSize)
	}
	return nil
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// SetDefaults applies default values for LoggingConfig.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

// ReplicaConfig identifies one graph replica.
type ReplicaConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// StoreConfig holds both graph replicas. The local replica backs every
// command; the cloud replica is opened by sync and migrate only.
type StoreConfig struct {
	Local ReplicaConfig `yaml:"local"`
	Cloud ReplicaConfig `yaml:"cloud"`
}

// SetDefaults applies default values for StoreConfig.
func (c *StoreConfig) SetDefaults() {
	if c.Local.Driver == "" {
		c.Local.Driver = "sqlite3"
	}
	if c.Local.DSN == "" {
		c.Local.DSN = "analyst.db"
	}
	if c.Cloud.Driver == "" {
		c.Cloud.Driver = "postgres"
	}
}

// RedisConfig holds the dedup cache configuration.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"     yaml:"addr"`
	Password string        `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// UnmarshalYAML parses the TTL as a duration string ("168h").
func (c *RedisConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.Addr = raw.Addr
	c.Password = raw.Password
	c.DB = raw.DB
	return parseDuration("redis.ttl", raw.TTL, &c.TTL)
}

// SetDefaults applies default values for RedisConfig.
func (c *RedisConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.TTL == 0 {
		c.TTL = 168 * time.Hour
	}
}

// LLMConfig holds the model provider configuration.
type LLMConfig struct {
	APIKey      string        `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model       string        `env:"ANTHROPIC_MODEL"   yaml:"model"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// UnmarshalYAML parses the timeout as a duration string ("2m").
func (c *LLMConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		APIKey      string  `yaml:"api_key"`
		Model       string  `yaml:"model"`
		MaxTokens   int64   `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		Timeout     string  `yaml:"timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.APIKey = raw.APIKey
	c.Model = raw.Model
	c.MaxTokens = raw.MaxTokens
	c.Temperature = raw.Temperature
	return parseDuration("llm.timeout", raw.Timeout, &c.Timeout)
}

// SetDefaults applies default values for LLMConfig.
func (c *LLMConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
}

// PipelineConfig tunes the mapper, rewrite policy and agent pipeline.
type PipelineConfig struct {
	MaxQualityRounds     int                 `yaml:"max_quality_rounds"`
	ConfidenceFloor      float64             `yaml:"confidence_floor"`
	CreateProposedTopics bool                `yaml:"create_proposed_topics"`
	RewriteCooldown      time.Duration       `yaml:"rewrite_cooldown"`
	SectionThresholds    map[string]int      `yaml:"section_thresholds"`
	Agents               map[string][]string `yaml:"agents"`
}

// UnmarshalYAML parses the rewrite cooldown as a duration string ("24h").
func (c *PipelineConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxQualityRounds     int                 `yaml:"max_quality_rounds"`
		ConfidenceFloor      float64             `yaml:"confidence_floor"`
		CreateProposedTopics bool                `yaml:"create_proposed_topics"`
		RewriteCooldown      string              `yaml:"rewrite_cooldown"`
		SectionThresholds    map[string]int      `yaml:"section_thresholds"`
		Agents               map[string][]string `yaml:"agents"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.MaxQualityRounds = raw.MaxQualityRounds
	c.ConfidenceFloor = raw.ConfidenceFloor
	c.CreateProposedTopics = raw.CreateProposedTopics
	c.SectionThresholds = raw.SectionThresholds
	c.Agents = raw.Agents
	return parseDuration("pipeline.rewrite_cooldown", raw.RewriteCooldown, &c.RewriteCooldown)
}

// SetDefaults applies default values for PipelineConfig.
func (c *PipelineConfig) SetDefaults() {
	if c.MaxQualityRounds == 0 {
		c.MaxQualityRounds = 2
	}
	if c.ConfidenceFloor == 0 {
		c.ConfidenceFloor = 0.6
	}
	if c.RewriteCooldown == 0 {
		c.RewriteCooldown = 24 * time.Hour
	}
	if c.SectionThresholds == nil {
		c.SectionThresholds = map[string]int{
			"fundamental":       4,
			"current":           3,
			"drivers":           2,
			"outlook":           3,
			"risks":             2,
			"executive_summary": 5,
		}
	}
	if c.Agents == nil {
		c.Agents = map[string][]string{
			"fundamental":       {"depth", "synthesis"},
			"current":           {"improvement", "synthesis"},
			"drivers":           {"depth"},
			"outlook":           {"synthesis", "contrarian"},
			"risks":             {"contrarian"},
			"executive_summary": {},
		}
	}
}

// TrackerConfig holds the provenance event store configuration.
type TrackerConfig struct {
	Dir string `env:"ANALYST_TRACKER_DIR" yaml:"dir"`
}

// SetDefaults applies default values for TrackerConfig.
func (c *TrackerConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "events"
	}
}

// QAConfig holds the auditor configuration.
type QAConfig struct {
	ReportsDir string `yaml:"reports_dir"`
	CounterDir string `yaml:"counter_dir"`
	Schedule   string `yaml:"schedule"`
}

// SetDefaults applies default values for QAConfig.
func (c *QAConfig) SetDefaults() {
	if c.ReportsDir == "" {
		c.ReportsDir = "qa/reports"
	}
	if c.CounterDir == "" {
		c.CounterDir = "qa"
	}
	if c.Schedule == "" {
		c.Schedule = "*/30 * * * *"
	}
}

// SyncConfig holds the reconciler configuration.
type SyncConfig struct {
	StatePath   string  `env:"ANALYST_SYNC_STATE" yaml:"state_path"`
	BatchSize   int     `yaml:"batch_size"`
	SafetyRatio float64 `yaml:"safety_ratio"`
}

// SetDefaults applies default values for SyncConfig.
func (c *SyncConfig) SetDefaults() {
	if c.StatePath == "" {
		c.StatePath = "sync_state.json"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.SafetyRatio == 0 {
		c.SafetyRatio = 0.5
	}
}

// SchedulerConfig holds the worker loop configuration.
type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	UnitBatch    int           `yaml:"unit_batch"`
	TopicBatch   int           `yaml:"topic_batch"`
}

// UnmarshalYAML parses the poll interval as a duration string ("30s").
func (c *SchedulerConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		PollInterval string `yaml:"poll_interval"`
		UnitBatch    int    `yaml:"unit_batch"`
		TopicBatch   int    `yaml:"topic_batch"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.UnitBatch = raw.UnitBatch
	c.TopicBatch = raw.TopicBatch
	return parseDuration("scheduler.poll_interval", raw.PollInterval, &c.PollInterval)
}

// SetDefaults applies default values for SchedulerConfig.
func (c *SchedulerConfig) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.UnitBatch == 0 {
		c.UnitBatch = 25
	}
	if c.TopicBatch == 0 {
		c.TopicBatch = 10
	}
}

// MetricsConfig holds the prometheus listener configuration.
type MetricsConfig struct {
	Addr string `env:"ANALYST_METRICS_ADDR" yaml:"addr"`
}

// SetDefaults applies default values for MetricsConfig.
func (c *MetricsConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":9091"
	}
}

// parseDuration fills dst from a yaml duration string. Empty means unset;
// the section's SetDefaults fills it later.
func parseDuration(name, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
