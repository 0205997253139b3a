package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Session keying policies
const (
	SessionPerUser       = "per_user"
	SessionPerConnection = "per_connection"
)

// Usage counter backends
const (
	UsageBackendDynamo = "dynamodb"
	UsageBackendRedis  = "redis"
)

// Config is the full application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	AWS      AWSConfig      `yaml:"aws"`
	Firebase FirebaseConfig `yaml:"firebase"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Meshulam MeshulamConfig `yaml:"meshulam"`
	Usage    UsageConfig    `yaml:"usage"`
	Redis    RedisConfig    `yaml:"redis"`
	Chat     ChatConfig     `yaml:"chat"`
	Auth     AuthConfig     `yaml:"auth"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	GinMode        string        `yaml:"gin_mode"`
	StaticDir      string        `yaml:"static_dir"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	Version        string        `yaml:"version"`
}

type AWSConfig struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	TablePrefix  string `yaml:"table_prefix"`
	CreateTables bool   `yaml:"create_tables"`
}

type FirebaseConfig struct {
	ProjectID          string `yaml:"project_id"`
	ServiceAccountPath string `yaml:"service_account_path"`
	ServiceAccountJSON string `yaml:"service_account_json"`
	MaterialsEnabled   bool   `yaml:"materials_enabled"`
}

type OpenAIConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type MeshulamConfig struct {
	BaseURL       string        `yaml:"base_url"`
	PageCode      string        `yaml:"page_code"`
	APIKey        string        `yaml:"api_key"`
	APISecret     string        `yaml:"api_secret"`
	WebhookSecret string        `yaml:"webhook_secret"`
	SuccessURL    string        `yaml:"success_url"`
	CancelURL     string        `yaml:"cancel_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

type UsageConfig struct {
	Backend      string `yaml:"backend"`
	MonthlyQuota int    `yaml:"monthly_quota"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type ChatConfig struct {
	SessionPolicy string `yaml:"session_policy"`
	HistoryTurns  int    `yaml:"history_turns"`
}

type AuthConfig struct {
	AdminUIDs   []string `yaml:"admin_uids"`
	AdminEmails []string `yaml:"admin_emails"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file or env override is set
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8888",
			GinMode:        "release",
			StaticDir:      "./build",
			AllowedOrigins: []string{"https://chat.blendarabic.com", "http://localhost:8050", "http://localhost:3000"},
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   90 * time.Second,
			Version:        "1.0.0",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Firebase: FirebaseConfig{
			MaterialsEnabled: true,
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4-turbo",
			Temperature: 0.3,
			MaxTokens:   1000,
			Timeout:     60 * time.Second,
		},
		Meshulam: MeshulamConfig{
			BaseURL: "https://secure.meshulam.co.il/api/light/server/1.0",
			Timeout: 15 * time.Second,
		},
		Usage: UsageConfig{
			Backend:      UsageBackendDynamo,
			MonthlyQuota: 50,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Chat: ChatConfig{
			SessionPolicy: SessionPerUser,
			HistoryTurns:  5,
		},
		Metrics: MetricsConfig{
			Namespace: "blendar",
		},
	}
}

// Load reads the YAML file at path (if it exists), then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env and defaults only
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Chat.SessionPolicy {
	case SessionPerUser, SessionPerConnection:
	default:
		return fmt.Errorf("invalid chat.session_policy %q", c.Chat.SessionPolicy)
	}
	switch c.Usage.Backend {
	case UsageBackendDynamo, UsageBackendRedis:
	default:
		return fmt.Errorf("invalid usage.backend %q", c.Usage.Backend)
	}
	if c.Usage.MonthlyQuota <= 0 {
		return fmt.Errorf("usage.monthly_quota must be positive, got %d", c.Usage.MonthlyQuota)
	}
	if c.Chat.HistoryTurns < 0 {
		return fmt.Errorf("chat.history_turns must not be negative, got %d", c.Chat.HistoryTurns)
	}
	return nil
}

// ModelConfigured reports whether the language model client has credentials
func (c *Config) ModelConfigured() bool {
	return c.OpenAI.APIKey != ""
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.GinMode, "GIN_MODE")
	setString(&cfg.Server.StaticDir, "STATIC_DIR")
	setList(&cfg.Server.AllowedOrigins, "ALLOWED_ORIGINS")

	setString(&cfg.AWS.Region, "AWS_REGION")
	setString(&cfg.AWS.Endpoint, "DYNAMODB_ENDPOINT")
	setString(&cfg.AWS.TablePrefix, "DYNAMO_TABLE_PREFIX")
	setBool(&cfg.AWS.CreateTables, "CREATE_TABLES")

	setString(&cfg.Firebase.ProjectID, "FIREBASE_PROJECT_ID")
	setString(&cfg.Firebase.ServiceAccountPath, "FIREBASE_SERVICE_ACCOUNT_PATH")
	setString(&cfg.Firebase.ServiceAccountJSON, "FIREBASE_SERVICE_ACCOUNT_JSON")
	setBool(&cfg.Firebase.MaterialsEnabled, "MATERIALS_ENABLED")

	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.OpenAI.Model, "OPENAI_MODEL")
	setDuration(&cfg.OpenAI.Timeout, "OPENAI_TIMEOUT")

	setString(&cfg.Meshulam.BaseURL, "MESHULAM_BASE_URL")
	setString(&cfg.Meshulam.PageCode, "MESHULAM_PAGE_CODE")
	setString(&cfg.Meshulam.APIKey, "MESHULAM_API_KEY")
	setString(&cfg.Meshulam.APISecret, "MESHULAM_API_SECRET")
	setString(&cfg.Meshulam.WebhookSecret, "MESHULAM_WEBHOOK_SECRET")
	setString(&cfg.Meshulam.SuccessURL, "MESHULAM_SUCCESS_URL")
	setString(&cfg.Meshulam.CancelURL, "MESHULAM_CANCEL_URL")
	setDuration(&cfg.Meshulam.Timeout, "MESHULAM_TIMEOUT")

	setString(&cfg.Usage.Backend, "USAGE_BACKEND")
	setInt(&cfg.Usage.MonthlyQuota, "MONTHLY_QUOTA")
	setString(&cfg.Redis.URL, "REDIS_URL")

	setString(&cfg.Chat.SessionPolicy, "SESSION_POLICY")
	setList(&cfg.Auth.AdminUIDs, "ADMIN_UIDS")
	setList(&cfg.Auth.AdminEmails, "ADMIN_EMAILS")
	setString(&cfg.Metrics.Namespace, "METRICS_NAMESPACE")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
