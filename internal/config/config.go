package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"serialrent-backend/internal/pricing"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Fees      FeesConfig      `yaml:"fees"`
	Rental    RentalConfig    `yaml:"rental"`
	Billing   BillingConfig   `yaml:"billing"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains gRPC and HTTP listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	HTTPPort int    `yaml:"http_port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // "postgres" or "memory"
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	SSLMode     string `yaml:"ssl_mode"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// SMTPConfig contains email service settings. An empty host disables email.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// AuthConfig covers operator access tokens and scanner API keys
type AuthConfig struct {
	JWTSecret          string   `yaml:"jwt_secret"`
	AccessTokenExpiry  int      `yaml:"access_token_expiry_minutes"`
	TagSecret          string   `yaml:"tag_secret"`
	ScannerKeyHashes   []string `yaml:"scanner_key_hashes"` // bcrypt
	ScannerActorPrefix string   `yaml:"scanner_actor_prefix"`
}

// StorageConfig contains damage photo storage settings
type StorageConfig struct {
	Type         string   `yaml:"type"` // "mock"
	UploadDir    string   `yaml:"upload_dir"`
	BaseURL      string   `yaml:"base_url"`
	MaxFileSize  int64    `yaml:"max_file_size_mb"`
	AllowedTypes []string `yaml:"allowed_types"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// FeesConfig holds late fee and damage classification settings. Thresholds and
// default fees are pointers so an explicit 0 is kept rather than defaulted.
type FeesConfig struct {
	LateFeeMethod     string   `yaml:"late_fee_method"` // "daily", "percentage" or "maximum"
	LateFeeDailyRate  float64  `yaml:"late_fee_daily_rate"`
	LateFeePercentage float64  `yaml:"late_fee_percentage"`
	MinorThreshold    *float64 `yaml:"minor_threshold"`
	ModerateThreshold *float64 `yaml:"moderate_threshold"`
	MinorDefaultFee   *float64 `yaml:"minor_default_fee"`
	DamagedDefaultFee *float64 `yaml:"damaged_default_fee"`
}

// RentalConfig holds serial and reminder behaviour
type RentalConfig struct {
	SerialPrefix          string `yaml:"serial_prefix"`
	AutoGenerateSerials   bool   `yaml:"auto_generate_serials"`
	DefaultLateFeeEnabled *bool  `yaml:"default_late_fee_enabled"`
	LowStockThreshold     int    `yaml:"low_stock_threshold"`
	ReminderDaysBefore    int    `yaml:"reminder_days_before"`
	RequirePhotos         bool   `yaml:"require_photos"`
	OperationsEmail       string `yaml:"operations_email"`
}

// BillingConfig points at the invoicing webhook
type BillingConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	DetectOverdueItems   string `yaml:"detect_overdue_items"`
	SendOverdueReminders string `yaml:"send_overdue_reminders"`
	SendReturnReminders  string `yaml:"send_return_reminders"`
	CheckLowStock        string `yaml:"check_low_stock"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a validated Config from YAML bytes, applying environment overrides
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// SMTP
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.SMTP.Port)
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.SMTP.User = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.SMTP.Password = val
	}

	// Auth
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.Auth.JWTSecret = val
	}
	if val := os.Getenv("TAG_SECRET"); val != "" {
		c.Auth.TagSecret = val
	}
	if val := os.Getenv("SCANNER_KEY_HASHES"); val != "" {
		c.Auth.ScannerKeyHashes = strings.Split(val, ",")
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("HTTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.HTTPPort)
	}

	// Billing
	if val := os.Getenv("BILLING_WEBHOOK_URL"); val != "" {
		c.Billing.WebhookURL = val
	}
	if val := os.Getenv("BILLING_API_KEY"); val != "" {
		c.Billing.APIKey = val
	}

	// Fees
	if val := os.Getenv("LATE_FEE_METHOD"); val != "" {
		c.Fees.LateFeeMethod = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = c.Server.Port + 1
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 || c.Server.HTTPPort == c.Server.Port {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}

	// Database validation
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	// SMTP validation
	if c.SMTP.Host != "" && (c.SMTP.Port <= 0 || c.SMTP.Port > 65535) {
		return fmt.Errorf("invalid SMTP port: %d", c.SMTP.Port)
	}

	// Auth validation
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.Auth.TagSecret == "" {
		c.Auth.TagSecret = c.Auth.JWTSecret
	}
	if c.Auth.AccessTokenExpiry == 0 {
		c.Auth.AccessTokenExpiry = 8 * 60
	}
	if c.Auth.ScannerActorPrefix == "" {
		c.Auth.ScannerActorPrefix = "scanner"
	}

	// Storage defaults
	if c.Storage.Type == "" {
		c.Storage.Type = "mock"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "./uploads"
	}
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.HTTPPort)
	}
	if c.Storage.MaxFileSize == 0 {
		c.Storage.MaxFileSize = 10
	}

	// Fee defaults
	if c.Fees.LateFeeMethod == "" {
		c.Fees.LateFeeMethod = string(pricing.LateFeeMethodMaximum)
	}
	defaultFloat(&c.Fees.MinorThreshold, 100)
	defaultFloat(&c.Fees.ModerateThreshold, 500)
	defaultFloat(&c.Fees.MinorDefaultFee, 50)
	defaultFloat(&c.Fees.DamagedDefaultFee, 250)
	if err := c.FeePolicy().Validate(); err != nil {
		return err
	}

	// Rental defaults
	if c.Rental.SerialPrefix == "" {
		c.Rental.SerialPrefix = "SN"
	}
	if c.Rental.DefaultLateFeeEnabled == nil {
		enabled := true
		c.Rental.DefaultLateFeeEnabled = &enabled
	}
	if c.Rental.LowStockThreshold == 0 {
		c.Rental.LowStockThreshold = 2
	}
	if c.Rental.ReminderDaysBefore == 0 {
		c.Rental.ReminderDaysBefore = 1
	}

	// Billing defaults
	if c.Billing.TimeoutSeconds == 0 {
		c.Billing.TimeoutSeconds = 10
	}

	// Scheduler defaults
	if c.Scheduler.DetectOverdueItems == "" {
		c.Scheduler.DetectOverdueItems = "0 0 2 * * *" // 2 AM UTC
	}
	if c.Scheduler.SendOverdueReminders == "" {
		c.Scheduler.SendOverdueReminders = "0 0 3 * * *" // 3 AM UTC
	}
	if c.Scheduler.SendReturnReminders == "" {
		c.Scheduler.SendReturnReminders = "0 0 8 * * *" // 8 AM UTC
	}
	if c.Scheduler.CheckLowStock == "" {
		c.Scheduler.CheckLowStock = "0 0 */6 * * *" // every 6 hours
	}

	return nil
}

// FeePolicy converts the fee settings into the value passed to fee computations
func (c *Config) FeePolicy() pricing.Policy {
	return pricing.Policy{
		Late: pricing.LateFeePolicy{
			Method:     pricing.LateFeeMethod(c.Fees.LateFeeMethod),
			DailyRate:  decimal.NewFromFloat(c.Fees.LateFeeDailyRate),
			Percentage: decimal.NewFromFloat(c.Fees.LateFeePercentage),
		},
		Damage: pricing.DamagePolicy{
			MinorThreshold:    decimalOf(c.Fees.MinorThreshold),
			ModerateThreshold: decimalOf(c.Fees.ModerateThreshold),
			MinorDefault:      decimalOf(c.Fees.MinorDefaultFee),
			DamagedDefault:    decimalOf(c.Fees.DamagedDefaultFee),
		},
	}
}

func defaultFloat(field **float64, value float64) {
	if *field == nil {
		*field = &value
	}
}

func decimalOf(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the gRPC server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetHTTPAddress returns the REST server address
func (c *Config) GetHTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}
