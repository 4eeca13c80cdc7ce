package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the TOML configuration file structure
type TOMLConfig struct {
	HTTP         TOMLHTTPConfig         `toml:"http"`
	Queue        TOMLQueueConfig        `toml:"queue"`
	ConfigSource TOMLConfigSourceConfig `toml:"config_source"`
	Leader       TOMLLeaderConfig       `toml:"leader"`
	Secrets      TOMLSecretsConfig      `toml:"secrets"`
	Notification TOMLNotificationConfig `toml:"notification"`
	DataDir      string                 `toml:"data_dir"`
	DevMode      bool                   `toml:"dev_mode"`
}

// TOMLHTTPConfig represents HTTP configuration in TOML
type TOMLHTTPConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// TOMLQueueConfig represents queue configuration in TOML
type TOMLQueueConfig struct {
	Type string         `toml:"type"`
	NATS TOMLNATSConfig `toml:"nats"`
	SQS  TOMLSQSConfig  `toml:"sqs"`
}

// TOMLNATSConfig represents NATS configuration in TOML
type TOMLNATSConfig struct {
	URL     string `toml:"url"`
	DataDir string `toml:"data_dir"`
}

// TOMLSQSConfig represents SQS configuration in TOML
type TOMLSQSConfig struct {
	QueueURL          string `toml:"queue_url"`
	Region            string `toml:"region"`
	WaitTimeSeconds   int    `toml:"wait_time_seconds"`
	VisibilityTimeout int    `toml:"visibility_timeout"`
}

// TOMLConfigSourceConfig represents the control-plane configuration source in TOML
type TOMLConfigSourceConfig struct {
	URL          string `toml:"url"`
	SyncInterval string `toml:"sync_interval"`
}

// TOMLLeaderConfig represents leader election configuration in TOML
type TOMLLeaderConfig struct {
	Enabled         bool   `toml:"enabled"`
	InstanceID      string `toml:"instance_id"`
	TTL             string `toml:"ttl"`
	RefreshInterval string `toml:"refresh_interval"`
}

// TOMLSecretsConfig represents secrets provider configuration in TOML
type TOMLSecretsConfig struct {
	Provider      string `toml:"provider"`
	EncryptionKey string `toml:"encryption_key"`
	DataDir       string `toml:"data_dir"`

	// AWS
	AWSRegion   string `toml:"aws_region"`
	AWSPrefix   string `toml:"aws_prefix"`
	AWSEndpoint string `toml:"aws_endpoint"`

	// Vault
	VaultAddr      string `toml:"vault_addr"`
	VaultPath      string `toml:"vault_path"`
	VaultNamespace string `toml:"vault_namespace"`

	// GCP
	GCPProject string `toml:"gcp_project"`
	GCPPrefix  string `toml:"gcp_prefix"`
}

// TOMLNotificationConfig represents warning escalation configuration in TOML
type TOMLNotificationConfig struct {
	Email       TOMLEmailConfig `toml:"email"`
	Teams       TOMLTeamsConfig `toml:"teams"`
	MinSeverity string          `toml:"min_severity"`
	BatchWindow string          `toml:"batch_window"`
}

// TOMLEmailConfig represents SMTP notification configuration in TOML
type TOMLEmailConfig struct {
	Enabled     bool   `toml:"enabled"`
	SMTPHost    string `toml:"smtp_host"`
	SMTPPort    int    `toml:"smtp_port"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	FromAddress string `toml:"from_address"`
	ToAddress   string `toml:"to_address"`
}

// TOMLTeamsConfig represents Teams webhook notification configuration in TOML
type TOMLTeamsConfig struct {
	Enabled    bool   `toml:"enabled"`
	WebhookURL string `toml:"webhook_url"`
}

// ConfigPaths lists the paths to search for config files
var ConfigPaths = []string{
	"config.toml",
	"application.toml",
	"msgrouter.toml",
	"./config/config.toml",
	"./config/application.toml",
	"/etc/msgrouter/config.toml",
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(path string) (*Config, error) {
	var tomlCfg TOMLConfig

	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return tomlConfigToConfig(&tomlCfg)
}

// LoadWithFile loads configuration from file first, then overrides with env vars
func LoadWithFile() (*Config, error) {
	// Start with defaults from environment
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	// Check for explicit config file path
	configPath := os.Getenv("ROUTER_CONFIG")
	if configPath == "" {
		// Search for config file in standard locations
		for _, path := range ConfigPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	// If no config file found, just use env vars
	if configPath == "" {
		return cfg, nil
	}

	// Load from file
	fileCfg, err := LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	// Merge: file config as base, env vars override
	return mergeConfigs(fileCfg, cfg), nil
}

// tomlConfigToConfig converts TOML config to the internal Config struct
func tomlConfigToConfig(tc *TOMLConfig) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        tc.HTTP.Port,
			CORSOrigins: tc.HTTP.CORSOrigins,
		},
		Queue: QueueConfig{
			Type: tc.Queue.Type,
			NATS: NATSConfig{
				URL:     tc.Queue.NATS.URL,
				DataDir: tc.Queue.NATS.DataDir,
			},
			SQS: SQSConfig{
				QueueURL:          tc.Queue.SQS.QueueURL,
				Region:            tc.Queue.SQS.Region,
				WaitTimeSeconds:   tc.Queue.SQS.WaitTimeSeconds,
				VisibilityTimeout: tc.Queue.SQS.VisibilityTimeout,
			},
		},
		ConfigSource: ConfigSourceConfig{
			URL: tc.ConfigSource.URL,
		},
		Leader: LeaderConfig{
			Enabled:    tc.Leader.Enabled,
			InstanceID: tc.Leader.InstanceID,
		},
		Notification: NotificationConfig{
			Email: EmailConfig{
				Enabled:     tc.Notification.Email.Enabled,
				SMTPHost:    tc.Notification.Email.SMTPHost,
				SMTPPort:    tc.Notification.Email.SMTPPort,
				Username:    tc.Notification.Email.Username,
				Password:    tc.Notification.Email.Password,
				FromAddress: tc.Notification.Email.FromAddress,
				ToAddress:   tc.Notification.Email.ToAddress,
			},
			Teams: TeamsConfig{
				Enabled:    tc.Notification.Teams.Enabled,
				WebhookURL: tc.Notification.Teams.WebhookURL,
			},
			MinSeverity: tc.Notification.MinSeverity,
		},
		DataDir: tc.DataDir,
		DevMode: tc.DevMode,
	}

	// Parse durations
	if tc.ConfigSource.SyncInterval != "" {
		if d, err := time.ParseDuration(tc.ConfigSource.SyncInterval); err == nil {
			cfg.ConfigSource.SyncInterval = d
		}
	}
	if tc.Leader.TTL != "" {
		if d, err := time.ParseDuration(tc.Leader.TTL); err == nil {
			cfg.Leader.TTL = d
		}
	}
	if tc.Leader.RefreshInterval != "" {
		if d, err := time.ParseDuration(tc.Leader.RefreshInterval); err == nil {
			cfg.Leader.RefreshInterval = d
		}
	}
	if tc.Notification.BatchWindow != "" {
		if d, err := time.ParseDuration(tc.Notification.BatchWindow); err == nil {
			cfg.Notification.BatchWindow = d
		}
	}

	return cfg, nil
}

// mergeConfigs merges two configs, with override taking precedence for non-zero
// values; an override value equal to its env default does not replace a value
// set in base
func mergeConfigs(base, override *Config) *Config {
	result := *base

	// HTTP
	if override.HTTP.Port != 0 && override.HTTP.Port != 8080 {
		result.HTTP.Port = override.HTTP.Port
	}
	if len(override.HTTP.CORSOrigins) > 0 && (len(result.HTTP.CORSOrigins) == 0 ||
		!(len(override.HTTP.CORSOrigins) == 1 && override.HTTP.CORSOrigins[0] == "http://localhost:4200")) {
		result.HTTP.CORSOrigins = override.HTTP.CORSOrigins
	}

	// Queue
	if override.Queue.Type != "" && override.Queue.Type != "embedded" {
		result.Queue.Type = override.Queue.Type
	}
	if override.Queue.NATS.URL != "" && (override.Queue.NATS.URL != "nats://localhost:4222" || result.Queue.NATS.URL == "") {
		result.Queue.NATS.URL = override.Queue.NATS.URL
	}
	if override.Queue.NATS.DataDir != "" && (override.Queue.NATS.DataDir != "./data/nats" || result.Queue.NATS.DataDir == "") {
		result.Queue.NATS.DataDir = override.Queue.NATS.DataDir
	}
	if override.Queue.SQS.QueueURL != "" {
		result.Queue.SQS.QueueURL = override.Queue.SQS.QueueURL
	}
	if override.Queue.SQS.Region != "" && (override.Queue.SQS.Region != "us-east-1" || result.Queue.SQS.Region == "") {
		result.Queue.SQS.Region = override.Queue.SQS.Region
	}

	// Config source
	if override.ConfigSource.URL != "" {
		result.ConfigSource.URL = override.ConfigSource.URL
	}
	if override.ConfigSource.SyncInterval != 0 && override.ConfigSource.SyncInterval != 5*time.Minute {
		result.ConfigSource.SyncInterval = override.ConfigSource.SyncInterval
	}

	// Leader
	if override.Leader.Enabled {
		result.Leader.Enabled = true
	}
	if override.Leader.InstanceID != "" {
		result.Leader.InstanceID = override.Leader.InstanceID
	}

	// Notification
	if override.Notification.Email.Enabled {
		result.Notification.Email.Enabled = true
	}
	if override.Notification.Email.SMTPHost != "" {
		result.Notification.Email.SMTPHost = override.Notification.Email.SMTPHost
	}
	if override.Notification.Email.FromAddress != "" {
		result.Notification.Email.FromAddress = override.Notification.Email.FromAddress
	}
	if override.Notification.Email.ToAddress != "" {
		result.Notification.Email.ToAddress = override.Notification.Email.ToAddress
	}
	if override.Notification.Teams.Enabled {
		result.Notification.Teams.Enabled = true
	}
	if override.Notification.Teams.WebhookURL != "" {
		result.Notification.Teams.WebhookURL = override.Notification.Teams.WebhookURL
	}
	if override.Notification.MinSeverity != "" && override.Notification.MinSeverity != "ERROR" {
		result.Notification.MinSeverity = override.Notification.MinSeverity
	}
	if override.Notification.BatchWindow != 0 && override.Notification.BatchWindow != 5*time.Minute {
		result.Notification.BatchWindow = override.Notification.BatchWindow
	}

	// General
	if override.DataDir != "" && override.DataDir != "./data" {
		result.DataDir = override.DataDir
	}
	if override.DevMode {
		result.DevMode = true
	}

	return &result
}

// WriteExampleConfig writes an example configuration file
func WriteExampleConfig(path string) error {
	example := `# Router Configuration
# Environment variables override these settings

[http]
port = 8080
cors_origins = ["http://localhost:4200"]

[queue]
type = "embedded"  # embedded, nats, or sqs

[queue.nats]
url = "nats://localhost:4222"
data_dir = "./data/nats"

[queue.sqs]
queue_url = ""
region = "us-east-1"
wait_time_seconds = 20
visibility_timeout = 120

[config_source]
url = ""
sync_interval = "5m"

[leader]
enabled = false
instance_id = ""
ttl = "30s"
refresh_interval = "10s"

[secrets]
provider = "env"  # env, encrypted, aws-sm, vault, gcp-sm

# Encrypted provider
encryption_key = ""
data_dir = "./data/secrets"

# AWS Secrets Manager
aws_region = ""
aws_prefix = "/msgrouter/"
aws_endpoint = ""

# HashiCorp Vault
vault_addr = ""
vault_path = "secret/data/msgrouter"
vault_namespace = ""

# GCP Secret Manager
gcp_project = ""
gcp_prefix = "msgrouter-"

[notification]
min_severity = "ERROR"  # floor severity that gets escalated: WARN, ERROR, or CRITICAL
batch_window = "5m"

[notification.email]
enabled = false
smtp_host = ""
smtp_port = 587
username = ""
password = ""
from_address = ""
to_address = ""

[notification.teams]
enabled = false
webhook_url = ""

data_dir = "./data"
dev_mode = false
`

	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(example), 0644)
}
