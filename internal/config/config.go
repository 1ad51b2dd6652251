package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig         `yaml:"server"`
	Storage       StorageConfig        `yaml:"storage"`
	SES           SESConfig            `yaml:"ses"`
	SNS           SNSConfig            `yaml:"sns"`
	Sequence      SequenceConfig       `yaml:"sequence"`
	Redis         RedisConfig          `yaml:"redis"`
	Queue         QueueConfig          `yaml:"queue"`
	Auth          AuthConfig           `yaml:"auth"`
	RateLimits    map[string]RateLimit `yaml:"rate_limits"`
	Scoring       ScoringConfig        `yaml:"scoring"`
	Notifications NotificationsConfig  `yaml:"notifications"`
	Site          SiteConfig           `yaml:"site"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string {
	return c.GetHost() + ":" + strconv.Itoa(c.Port)
}

// StorageConfig holds DynamoDB table and S3 bucket names
type StorageConfig struct {
	Region           string `yaml:"region"`
	Profile          string `yaml:"profile"` // Empty string uses default credential chain (IAM role on ECS)
	LeadsTable       string `yaml:"leads_table"`
	EventsTable      string `yaml:"events_table"`
	SessionsTable    string `yaml:"sessions_table"`
	ConversionsTable string `yaml:"conversions_table"`
	ExportBucket     string `yaml:"export_bucket"`
	EventTTLDays     int    `yaml:"event_ttl_days"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// EventTTL returns how long analytics items live before DynamoDB expires them.
func (c StorageConfig) EventTTL() time.Duration {
	return time.Duration(c.EventTTLDays) * 24 * time.Hour
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromAddress    string `yaml:"from_address"`
	FromName       string `yaml:"from_name"`
	ReplyTo        string `yaml:"reply_to"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// From returns the formatted sender, "Name <addr>" when a name is set.
func (c SESConfig) From() string {
	if c.FromName == "" {
		return c.FromAddress
	}
	return c.FromName + " <" + c.FromAddress + ">"
}

// SNSConfig holds webhook verification settings
type SNSConfig struct {
	CertCacheTTLMinutes int      `yaml:"cert_cache_ttl_minutes"`
	AllowedTopicARNs    []string `yaml:"allowed_topic_arns"`
}

// CertCacheTTL returns how long a signing certificate stays cached.
func (c SNSConfig) CertCacheTTL() time.Duration {
	return time.Duration(c.CertCacheTTLMinutes) * time.Minute
}

// SequenceConfig holds drip sequence policy
type SequenceConfig struct {
	SoftBounceThreshold int    `yaml:"soft_bounce_threshold"`
	UnsubscribeSecret   string `yaml:"unsubscribe_secret"`
	TokenMaxAgeDays     int    `yaml:"token_max_age_days"`
	SiteURL             string `yaml:"site_url"`
	CalendarURL         string `yaml:"calendar_url"`
	TrackingURL         string `yaml:"tracking_url"`
	ProcessHourUTC      int    `yaml:"process_hour_utc"`
	// TemplateDir overrides the embedded email templates when set.
	TemplateDir string `yaml:"template_dir"`
}

// TokenMaxAge returns the unsubscribe link validity window.
func (c SequenceConfig) TokenMaxAge() time.Duration {
	return time.Duration(c.TokenMaxAgeDays) * 24 * time.Hour
}

// RedisConfig holds the Redis connection URL. Empty disables Redis-backed
// features, which fall back to in-process state.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// QueueConfig holds background task queue settings
type QueueConfig struct {
	Type               string `yaml:"type"` // "sqs" or "memory"
	QueueURL           string `yaml:"queue_url"`
	Region             string `yaml:"region"`
	WaitTimeSeconds    int    `yaml:"wait_time_seconds"`
	MaxMessages        int    `yaml:"max_messages"`
	VisibilityTimeoutS int    `yaml:"visibility_timeout_seconds"`
}

// AuthConfig holds admin login configuration
type AuthConfig struct {
	AdminPasswordHash string `yaml:"admin_password_hash"`
	SessionSecret     string `yaml:"session_secret"`
	CookieName        string `yaml:"cookie_name"`
	SessionTTLHours   int    `yaml:"session_ttl_hours"`
	MaxFailedAttempts int    `yaml:"max_failed_attempts"`
	LockoutMinutes    int    `yaml:"lockout_minutes"`
	SecureCookie      bool   `yaml:"secure_cookie"`
	// WebhookAPIKey authenticates outreach tools calling the lead webhook.
	// Empty disables the endpoint.
	WebhookAPIKey string `yaml:"webhook_api_key"`
}

// SessionTTL returns the admin session lifetime.
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// Lockout returns how long an IP is locked out after too many failures.
func (c AuthConfig) Lockout() time.Duration {
	return time.Duration(c.LockoutMinutes) * time.Minute
}

// RateLimit is a fixed-window request budget
type RateLimit struct {
	Limit         int `yaml:"limit"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the rate limit window as a duration
func (r RateLimit) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// ScoringConfig holds the domain lists used by email-based scoring rules
type ScoringConfig struct {
	CompetitorDomains []string `yaml:"competitor_domains"`
	PersonalDomains   []string `yaml:"personal_domains"`
}

// NotificationsConfig holds sales notification settings
type NotificationsConfig struct {
	SalesEmail string `yaml:"sales_email"`
	Enabled    bool   `yaml:"enabled"`
}

// SiteConfig describes the marketing site served to visitors
type SiteConfig struct {
	OwnDomain string `yaml:"own_domain"`
}

// Default rate limit buckets.
var defaultRateLimits = map[string]RateLimit{
	"login":   {Limit: 5, WindowSeconds: 15 * 60},
	"form":    {Limit: 3, WindowSeconds: 60},
	"webhook": {Limit: 100, WindowSeconds: 60},
	"api":     {Limit: 30, WindowSeconds: 60},
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.LeadsTable == "" {
		cfg.Storage.LeadsTable = "databender-leads"
	}
	if cfg.Storage.EventsTable == "" {
		cfg.Storage.EventsTable = "databender-analytics-events"
	}
	if cfg.Storage.SessionsTable == "" {
		cfg.Storage.SessionsTable = "databender-analytics-sessions"
	}
	if cfg.Storage.ConversionsTable == "" {
		cfg.Storage.ConversionsTable = "databender-analytics-conversions"
	}
	if cfg.Storage.EventTTLDays == 0 {
		cfg.Storage.EventTTLDays = 90
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = cfg.Storage.Region
	}
	if cfg.SNS.CertCacheTTLMinutes == 0 {
		cfg.SNS.CertCacheTTLMinutes = 60
	}
	if cfg.Sequence.SoftBounceThreshold == 0 {
		cfg.Sequence.SoftBounceThreshold = 3
	}
	if cfg.Sequence.TokenMaxAgeDays == 0 {
		cfg.Sequence.TokenMaxAgeDays = 90
	}
	if cfg.Sequence.ProcessHourUTC == 0 {
		cfg.Sequence.ProcessHourUTC = 14
	}
	if cfg.Queue.Type == "" {
		cfg.Queue.Type = "memory"
	}
	if cfg.Queue.WaitTimeSeconds == 0 {
		cfg.Queue.WaitTimeSeconds = 20
	}
	if cfg.Queue.MaxMessages == 0 {
		cfg.Queue.MaxMessages = 10
	}
	if cfg.Queue.Region == "" {
		cfg.Queue.Region = cfg.Storage.Region
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "admin_session"
	}
	if cfg.Auth.SessionTTLHours == 0 {
		cfg.Auth.SessionTTLHours = 24
	}
	if cfg.Auth.MaxFailedAttempts == 0 {
		cfg.Auth.MaxFailedAttempts = 5
	}
	if cfg.Auth.LockoutMinutes == 0 {
		cfg.Auth.LockoutMinutes = 15
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = make(map[string]RateLimit)
	}
	for name, rl := range defaultRateLimits {
		if _, ok := cfg.RateLimits[name]; !ok {
			cfg.RateLimits[name] = rl
		}
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("LEADS_TABLE"); v != "" {
		cfg.Storage.LeadsTable = v
	}
	if v := os.Getenv("EXPORT_BUCKET"); v != "" {
		cfg.Storage.ExportBucket = v
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if v := os.Getenv("SES_FROM_ADDRESS"); v != "" {
		cfg.SES.FromAddress = v
	}

	// Secrets never live in config.yaml on ECS
	if v := os.Getenv("UNSUBSCRIBE_SECRET"); v != "" {
		cfg.Sequence.UnsubscribeSecret = v
	}
	if v := os.Getenv("ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Auth.AdminPasswordHash = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("WEBHOOK_API_KEY"); v != "" {
		cfg.Auth.WebhookAPIKey = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SQS_QUEUE_URL"); v != "" {
		cfg.Queue.QueueURL = v
		cfg.Queue.Type = "sqs"
	}
	if v := os.Getenv("SALES_NOTIFICATION_EMAIL"); v != "" {
		cfg.Notifications.SalesEmail = v
		cfg.Notifications.Enabled = true
	}
	if v := os.Getenv("COMPETITOR_DOMAINS"); v != "" {
		cfg.Scoring.CompetitorDomains = splitList(v)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
