package config

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Keywords holds the classifier keyword sets. Matching is case-insensitive
// substring matching; the sets are data so they can be tuned without a rebuild.
type Keywords struct {
	Promotional []string `json:"promotional"`
	Meeting     []string `json:"meeting"`
	Support     []string `json:"support"`
	NoReply     []string `json:"noreply"`
}

// Config holds the application configuration
type Config struct {
	DatabasePath  string   `json:"database_path"`
	APIPort       string   `json:"api_port"`
	DataDir       string   `json:"data_dir"`
	JWTSecret     string   `json:"jwt_secret"`
	EncryptionKey string   `json:"encryption_key"` // 独立的加密密钥（用于加密邮箱密码和 API Key）
	CORSOrigins   string   `json:"cors_origins"`
	TickMinutes   int      `json:"tick_minutes"` // scheduler tick granularity
	FetchLimit    int      `json:"fetch_limit"`  // max unseen messages per cycle
	LLMBaseURL    string   `json:"llm_base_url"`
	LLMModel      string   `json:"llm_model"`
	IMAPHost      string   `json:"imap_host"`
	IMAPPort      int      `json:"imap_port"`
	SMTPHost      string   `json:"smtp_host"`
	SMTPPort      int      `json:"smtp_port"`
	Keywords      Keywords `json:"keywords"`
}

// Default configuration values
const (
	DefaultDatabasePath  = "data/mailpilot.db"
	DefaultAPIPort       = "8080"
	DefaultDataDir       = "data"
	DefaultJWTSecret     = "mailpilot-default-secret-change-in-production"
	DefaultEncryptionKey = "" // 空表示从 JWTSecret 派生
	DefaultCORSOrigins   = "*"
	DefaultTickMinutes   = 1
	DefaultFetchLimit    = 10
	DefaultLLMBaseURL    = "https://openrouter.ai/api/v1"
	DefaultLLMModel      = "mistralai/mistral-7b-instruct"
	DefaultIMAPHost      = "imap.gmail.com"
	DefaultIMAPPort      = 993
	DefaultSMTPHost      = "smtp.gmail.com"
	DefaultSMTPPort      = 587
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:  DefaultDatabasePath,
		APIPort:       DefaultAPIPort,
		DataDir:       DefaultDataDir,
		JWTSecret:     DefaultJWTSecret,
		EncryptionKey: DefaultEncryptionKey,
		CORSOrigins:   DefaultCORSOrigins,
		TickMinutes:   DefaultTickMinutes,
		FetchLimit:    DefaultFetchLimit,
		LLMBaseURL:    DefaultLLMBaseURL,
		LLMModel:      DefaultLLMModel,
		IMAPHost:      DefaultIMAPHost,
		IMAPPort:      DefaultIMAPPort,
		SMTPHost:      DefaultSMTPHost,
		SMTPPort:      DefaultSMTPPort,
	}

	// Config file is optional
	_ = cfg.loadFromFile()

	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return json.Unmarshal(data, c)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("MAILPILOT_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("MAILPILOT_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("MAILPILOT_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("MAILPILOT_JWT_SECRET"); val != "" {
		c.JWTSecret = val
	}
	if val := os.Getenv("MAILPILOT_ENCRYPTION_KEY"); val != "" {
		c.EncryptionKey = val
	}
	if val := os.Getenv("MAILPILOT_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = val
	}
	if val := os.Getenv("MAILPILOT_TICK_MINUTES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.TickMinutes = n
		}
	}
	if val := os.Getenv("MAILPILOT_FETCH_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.FetchLimit = n
		}
	}
	if val := os.Getenv("MAILPILOT_LLM_BASE_URL"); val != "" {
		c.LLMBaseURL = val
	}
	if val := os.Getenv("MAILPILOT_LLM_MODEL"); val != "" {
		c.LLMModel = val
	}
	if val := os.Getenv("MAILPILOT_IMAP_HOST"); val != "" {
		c.IMAPHost = val
	}
	if val := os.Getenv("MAILPILOT_IMAP_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.IMAPPort = n
		}
	}
	if val := os.Getenv("MAILPILOT_SMTP_HOST"); val != "" {
		c.SMTPHost = val
	}
	if val := os.Getenv("MAILPILOT_SMTP_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.SMTPPort = n
		}
	}
}

// TickInterval returns the scheduler tick interval as a duration
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickMinutes) * time.Minute
}

// GetEncryptionKey returns the 32-byte key used for credential encryption
// If EncryptionKey is set, use it; otherwise derive from JWTSecret
func (c *Config) GetEncryptionKey() []byte {
	if c.EncryptionKey != "" {
		hash := sha256.Sum256([]byte(c.EncryptionKey))
		return hash[:]
	}
	hash := sha256.Sum256([]byte(c.JWTSecret + "-encryption"))
	return hash[:]
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
