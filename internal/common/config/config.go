// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Matching      MatchingConfig          `mapstructure:"matching"`
	Dispatch      DispatchConfig          `mapstructure:"dispatch"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Server        ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	BaseURL     string `mapstructure:"base_url"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	DonorsIndex string   `mapstructure:"donors_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// IntegrationConfig holds settings for the outbound delivery channels.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MatchingConfig holds the candidate search policy. RadiusKm and Priority are
// keyed by urgency level name (Low, Medium, High, Critical).
type MatchingConfig struct {
	RadiusKm          map[string]float64 `mapstructure:"radius_km"`
	DefaultRadiusKm   float64            `mapstructure:"default_radius_km"`
	Priority          map[string]string  `mapstructure:"priority"`
	DefaultPriority   string             `mapstructure:"default_priority"`
	DonorSource       string             `mapstructure:"donor_source"`        // postgres | elasticsearch
	IndexSyncInterval int                `mapstructure:"index_sync_interval"` // seconds; 0 syncs the donor index at startup only
}

// DispatchConfig holds settings for the asynchronous dispatch scheduler.
type DispatchConfig struct {
	Workers        int  `mapstructure:"workers"`
	QueueSize      int  `mapstructure:"queue_size"`
	Timeout        int  `mapstructure:"timeout"`         // milliseconds
	GuardEnabled   bool `mapstructure:"guard_enabled"`   // one dispatch per request via redis
	IdempotencyTTL int  `mapstructure:"idempotency_ttl"` // seconds
}

// NotificationConfig holds notification expiry and channel toggles.
type NotificationConfig struct {
	RequestExpiryHours int    `mapstructure:"request_expiry_hours"`
	DefaultExpiryHours int    `mapstructure:"default_expiry_hours"`
	EmailEnabled       bool   `mapstructure:"email_enabled"`
	SMSEnabled         bool   `mapstructure:"sms_enabled"`
	FromEmail          string `mapstructure:"from_email"`
	CleanupInterval    int    `mapstructure:"cleanup_interval"` // seconds, 0 disables
}

// ServerConfig holds the health/metrics listener.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}
