// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// Remote backends.
const (
	RemoteDrive = "drive"
	RemoteGCS   = "gcs"
	RemoteLocal = "local"
)

// Publish backends. An empty backend disables publishing.
const (
	PublishPubSub = "pubsub"
	PublishMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Harvest HarvestConfig `mapstructure:"harvest"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Publish PublishConfig `mapstructure:"publish"`
	Remote  RemoteConfig  `mapstructure:"remote"`
}

// HarvestConfig locates the three tables and tunes the row loop.
type HarvestConfig struct {
	DatasetPath       string        `mapstructure:"dataset_path"`
	EmailsPath        string        `mapstructure:"emails_path"`
	NotAccessiblePath string        `mapstructure:"not_accessible_path"`
	WebsiteColumn     string        `mapstructure:"website_column"`
	StatusColumn      string        `mapstructure:"status_column"`
	Budget            time.Duration `mapstructure:"budget"`
	MaxSubpages       int           `mapstructure:"max_subpages"`
	Prefixes          []string      `mapstructure:"prefixes"`
}

// HTTPConfig configures page fetches.
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
	// RequestsPerSecond paces fetches per host. Zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the Prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// PublishConfig selects where run summaries go.
type PublishConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// RemoteConfig describes the remote copy of the dataset.
type RemoteConfig struct {
	Backend        string `mapstructure:"backend"`
	CredentialsEnv string `mapstructure:"credentials_env"`
	FileID         string `mapstructure:"file_id"`
	FileName       string `mapstructure:"file_name"`
	ParentID       string `mapstructure:"parent_id"`
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	BaseDir        string `mapstructure:"base_dir"`
	LocalPath      string `mapstructure:"local_path"`
	AnnotateColumn string `mapstructure:"annotate_column"`
	// Endpoint overrides the API endpoint, mainly for emulators.
	Endpoint string `mapstructure:"endpoint"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
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

func setDefaults(v *viper.Viper) {
	defaults := harvest.DefaultConfig()
	v.SetDefault("harvest.dataset_path", "Dataset_M10_D20.xlsx")
	v.SetDefault("harvest.emails_path", "Website_Emails.xlsx")
	v.SetDefault("harvest.not_accessible_path", "Not_Accessible_Websites.xlsx")
	v.SetDefault("harvest.website_column", defaults.WebsiteColumn)
	v.SetDefault("harvest.status_column", defaults.StatusColumn)
	v.SetDefault("harvest.budget", defaults.Budget)
	v.SetDefault("harvest.max_subpages", defaults.MaxSubpages)
	v.SetDefault("harvest.prefixes", defaults.Prefixes)
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.user_agent", "Mozilla/5.0")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("publish.topic", "contact-harvester-runs")
	v.SetDefault("remote.backend", RemoteDrive)
	v.SetDefault("remote.credentials_env", "GDRIVE_CREDENTIALS")
	v.SetDefault("remote.file_name", "Dataset_M10_D20.xlsx")
	v.SetDefault("remote.prefix", "datasets")
	v.SetDefault("remote.annotate_column", "Last Updated")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.DatasetPath == "" {
		return fmt.Errorf("harvest.dataset_path must be set")
	}
	if c.Harvest.EmailsPath == "" || c.Harvest.NotAccessiblePath == "" {
		return fmt.Errorf("harvest.emails_path and harvest.not_accessible_path must be set")
	}
	if c.Harvest.Budget < 0 {
		return fmt.Errorf("harvest.budget must be >= 0")
	}
	if c.Harvest.MaxSubpages < 0 {
		return fmt.Errorf("harvest.max_subpages must be >= 0")
	}
	if err := c.HarvestConfig().Validate(); err != nil {
		return fmt.Errorf("harvest: %w", err)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	switch c.Publish.Backend {
	case "", PublishMemory:
	case PublishPubSub:
		if c.Publish.ProjectID == "" || c.Publish.Topic == "" {
			return fmt.Errorf("publish.project_id and publish.topic must be set for pubsub")
		}
	default:
		return fmt.Errorf("publish.backend %q is not supported", c.Publish.Backend)
	}
	switch c.Remote.Backend {
	case RemoteDrive:
	case RemoteGCS:
		if c.Remote.Bucket == "" {
			return fmt.Errorf("remote.bucket must be set for gcs")
		}
	case RemoteLocal:
		if c.Remote.BaseDir == "" {
			return fmt.Errorf("remote.base_dir must be set for local")
		}
	default:
		return fmt.Errorf("remote.backend %q is not supported", c.Remote.Backend)
	}
	return nil
}

// HarvestConfig converts the loaded settings into the row loop's config.
func (c Config) HarvestConfig() harvest.Config {
	return harvest.Config{
		WebsiteColumn: c.Harvest.WebsiteColumn,
		StatusColumn:  c.Harvest.StatusColumn,
		Prefixes:      c.Harvest.Prefixes,
		Budget:        c.Harvest.Budget,
		MaxSubpages:   c.Harvest.MaxSubpages,
		Topic:         c.publishTopic(),
	}
}

// SyncLocalPath is the file the sync commands read and write. It defaults to
// the harvest dataset.
func (c Config) SyncLocalPath() string {
	if c.Remote.LocalPath != "" {
		return c.Remote.LocalPath
	}
	return c.Harvest.DatasetPath
}

func (c Config) publishTopic() string {
	if c.Publish.Backend == "" {
		return ""
	}
	return c.Publish.Topic
}
