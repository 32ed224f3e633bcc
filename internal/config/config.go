package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName       string `mapstructure:"app_name"`
	Env           string `mapstructure:"app_env"`
	LogLevel      string `mapstructure:"log_level"`
	ListenAddress string `mapstructure:"listen_address"`

	DocTypesFile   string `mapstructure:"doctypes_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`

	FileStoreType string `mapstructure:"filestore_type"`
	FileStoreRoot string `mapstructure:"filestore_root"`

	KoncileAPIURL        string `mapstructure:"koncile_api_url"`
	KoncileAPIKey        string `mapstructure:"koncile_api_key"`
	KoncileWebhookSecret string `mapstructure:"koncile_webhook_secret"`

	UploadTimeoutSeconds     int64         `mapstructure:"upload_timeout_seconds"`
	UploadTimeout            time.Duration `mapstructure:"-"`
	WebhookToleranceSeconds  int64         `mapstructure:"webhook_tolerance_seconds"`
	WebhookTolerance         time.Duration `mapstructure:"-"`
	DispatchQueueSize        int           `mapstructure:"dispatch_queue_size"`
	DispatchWorkers          int           `mapstructure:"dispatch_workers"`
	DispatchRetryAttempts    int           `mapstructure:"dispatch_retry_attempts"`
	DispatchRetryBaseSeconds int64         `mapstructure:"dispatch_retry_base_seconds"`
	DispatchRetryBase        time.Duration `mapstructure:"-"`
}

// Production reports whether the runtime environment is production.
func (c *Config) Production() bool {
	return c != nil && c.Env == "production"
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "extraction-gateway")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_address", ":8080")
	v.SetDefault("doctypes_file", "./configs/doctypes.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/extractions.db")
	v.SetDefault("filestore_type", "local")
	v.SetDefault("filestore_root", "./data/files")
	v.SetDefault("koncile_api_url", "https://api.koncile.ai")
	// Secrets have no sensible default but must still be registered: viper
	// only reads env values for keys it knows about.
	v.SetDefault("koncile_api_key", "")
	v.SetDefault("koncile_webhook_secret", "")
	v.SetDefault("upload_timeout_seconds", 60)
	v.SetDefault("webhook_tolerance_seconds", 300)
	v.SetDefault("dispatch_queue_size", 256)
	v.SetDefault("dispatch_workers", 4)
	v.SetDefault("dispatch_retry_attempts", 3)
	v.SetDefault("dispatch_retry_base_seconds", 30)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.UploadTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid upload_timeout_seconds (must be positive seconds)")
	}
	cfg.UploadTimeout = time.Duration(cfg.UploadTimeoutSeconds) * time.Second

	if cfg.WebhookToleranceSeconds <= 0 {
		return nil, fmt.Errorf("invalid webhook_tolerance_seconds (must be positive seconds)")
	}
	cfg.WebhookTolerance = time.Duration(cfg.WebhookToleranceSeconds) * time.Second

	if cfg.DispatchQueueSize <= 0 {
		return nil, fmt.Errorf("invalid dispatch_queue_size (must be positive)")
	}
	if cfg.DispatchWorkers <= 0 {
		return nil, fmt.Errorf("invalid dispatch_workers (must be positive)")
	}
	if cfg.DispatchRetryAttempts <= 0 {
		return nil, fmt.Errorf("invalid dispatch_retry_attempts (must be positive)")
	}
	if cfg.DispatchRetryBaseSeconds <= 0 {
		return nil, fmt.Errorf("invalid dispatch_retry_base_seconds (must be positive seconds)")
	}
	cfg.DispatchRetryBase = time.Duration(cfg.DispatchRetryBaseSeconds) * time.Second

	return &cfg, nil
}
