package api

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Duration lets YAML carry values like "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config carries everything the server needs to run. Values come from
// defaults, then an optional YAML file, then environment variables, the
// later overriding the earlier.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	DatabasePath   string `yaml:"database_path"`
	SeedSampleData bool   `yaml:"seed_sample_data"`

	UploadDir     string `yaml:"upload_dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"`

	AdminUserFile    string   `yaml:"admin_user_file"`
	UploaderUserFile string   `yaml:"uploader_user_file"`
	JWTSecret        string   `yaml:"jwt_secret"`
	TokenTTL         Duration `yaml:"token_ttl"`

	CORSOrigins string `yaml:"cors_origins"`

	SlackWebhookURL string `yaml:"slack_webhook_url"`
	SlackChannel    string `yaml:"slack_channel"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             8000,
		DatabasePath:     "db/storage_performance.db",
		SeedSampleData:   true,
		UploadDir:        "uploads",
		MaxUploadSize:    50 * 1024 * 1024,
		AdminUserFile:    ".htpasswd",
		UploaderUserFile: ".htuploaders",
		TokenTTL:         Duration(24 * time.Hour),
		CORSOrigins:      "*",
	}
}

// LoadConfigFromEnv builds the runtime configuration. When CONFIG_FILE
// points at a YAML file it is applied over the defaults before the
// environment variables.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			log.Printf("[Config] Cannot load %s: %v", path, err)
		}
	}

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.DatabasePath = getEnvOrDefault("DB_PATH", cfg.DatabasePath)
	cfg.UploadDir = getEnvOrDefault("UPLOAD_DIR", cfg.UploadDir)
	cfg.AdminUserFile = getEnvOrDefault("HTPASSWD_PATH", cfg.AdminUserFile)
	cfg.UploaderUserFile = getEnvOrDefault("HTUPLOADERS_PATH", cfg.UploaderUserFile)
	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.CORSOrigins = getEnvOrDefault("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.MaxUploadSize = getEnvInt64OrDefault("MAX_UPLOAD_SIZE", cfg.MaxUploadSize)
	cfg.SeedSampleData = getEnvBoolOrDefault("SEED_SAMPLE_DATA", cfg.SeedSampleData)
	cfg.SlackWebhookURL = getEnvOrDefault("SLACK_WEBHOOK_URL", cfg.SlackWebhookURL)
	cfg.SlackChannel = getEnvOrDefault("SLACK_CHANNEL", cfg.SlackChannel)
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.TokenTTL = Duration(parsed)
		} else {
			log.Printf("[Config] Invalid TOKEN_TTL %q: %v", v, err)
		}
	}

	if cfg.JWTSecret == "" {
		// Tokens minted against an ephemeral secret stop working after
		// a restart.
		cfg.JWTSecret = uuid.NewString()
		log.Printf("[Config] JWT_SECRET not set, generated an ephemeral secret")
	}
	return cfg
}

func (c *Config) loadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	log.Printf("[Config] Loaded configuration from %s", path)
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("[Config] Invalid %s %q, using %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
		log.Printf("[Config] Invalid %s %q, using %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("[Config] Invalid %s %q, using %t", key, value, defaultValue)
	}
	return defaultValue
}
