// Package config provides configuration for the console, the agent simulator
// and the operator CLI.
//
// Values come from built-in defaults, then an optional YAML file named by
// CONSOLE_CONFIG, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `yaml:"port"`
	ServerReadTimeout  time.Duration `yaml:"read_timeout"`
	ServerWriteTimeout time.Duration `yaml:"write_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`

	// Agent endpoints. Per-kind URLs default to AgentBaseURL.
	AgentBaseURL string `yaml:"agent_base_url"`
	ChatOpsURL   string `yaml:"chatops_url"`
	RCAURL       string `yaml:"rca_url"`
	PredictURL   string `yaml:"predict_url"`

	// NATS settings
	NATSURL      string `yaml:"nats_url"`
	NATSCAFile   string `yaml:"nats_ca_file"`
	NATSCertFile string `yaml:"nats_cert_file"`
	NATSKeyFile  string `yaml:"nats_key_file"`
	NATSToken    string `yaml:"nats_token"`

	// Event journal
	JournalEnabled  bool          `yaml:"journal_enabled"`
	JournalMaxAge   time.Duration `yaml:"journal_max_age"`
	JournalReplicas int           `yaml:"journal_replicas"`

	// JWT settings
	AuthEnabled bool   `yaml:"auth_enabled"`
	JWTSecret   string `yaml:"jwt_secret"`

	// CORS
	AllowedOrigins []string `yaml:"allowed_origins"`

	// LLM settings for the agent simulator's narrator
	Narrator        string        `yaml:"narrator"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	SimPort         string        `yaml:"sim_port"`
	SimStepDelay    time.Duration `yaml:"sim_step_delay"`

	// Rate limiting
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Tracing
	TracingEndpoint string `yaml:"tracing_endpoint"`
	TracingEnabled  bool   `yaml:"tracing_enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerPort:         "8080",
		ServerReadTimeout:  30 * time.Second,
		ServerWriteTimeout: 10 * time.Minute,
		ShutdownTimeout:    30 * time.Second,
		HeartbeatInterval:  15 * time.Second,

		AgentBaseURL: "http://localhost:8090",

		NATSURL: "nats://localhost:4222",

		JournalMaxAge:   7 * 24 * time.Hour,
		JournalReplicas: 1,

		JWTSecret: "development-secret-change-in-production",

		AllowedOrigins: []string{"https://*", "http://*"},

		Narrator: "scripted",
		SimPort:  "8090",

		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,

		LogLevel:  "info",
		LogFormat: "json",

		TracingEndpoint: "localhost:4318",
	}
}

// Load reads the YAML file named by CONSOLE_CONFIG, if any, and applies
// environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONSOLE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Server
	c.ServerPort = getEnv("PORT", c.ServerPort)
	c.ServerReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.ServerReadTimeout)
	c.ServerWriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.ServerWriteTimeout)
	c.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.HeartbeatInterval = getDurationEnv("SSE_HEARTBEAT_INTERVAL", c.HeartbeatInterval)

	// Agents
	c.AgentBaseURL = getEnv("AGENT_BASE_URL", c.AgentBaseURL)
	c.ChatOpsURL = getEnv("CHATOPS_URL", c.ChatOpsURL)
	c.RCAURL = getEnv("RCA_URL", c.RCAURL)
	c.PredictURL = getEnv("PREDICT_URL", c.PredictURL)

	// NATS
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSCAFile = getEnv("NATS_CA_FILE", c.NATSCAFile)
	c.NATSCertFile = getEnv("NATS_CERT_FILE", c.NATSCertFile)
	c.NATSKeyFile = getEnv("NATS_KEY_FILE", c.NATSKeyFile)
	c.NATSToken = getEnv("NATS_TOKEN", c.NATSToken)

	// Journal
	c.JournalEnabled = getBoolEnv("JOURNAL_ENABLED", c.JournalEnabled)
	c.JournalMaxAge = getDurationEnv("JOURNAL_MAX_AGE", c.JournalMaxAge)
	c.JournalReplicas = getIntEnv("JOURNAL_REPLICAS", c.JournalReplicas)

	// JWT
	c.AuthEnabled = getBoolEnv("AUTH_ENABLED", c.AuthEnabled)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)

	// CORS
	c.AllowedOrigins = getListEnv("ALLOWED_ORIGINS", c.AllowedOrigins)

	// LLM
	c.Narrator = getEnv("NARRATOR", c.Narrator)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.SimPort = getEnv("SIM_PORT", c.SimPort)
	c.SimStepDelay = getDurationEnv("SIM_STEP_DELAY", c.SimStepDelay)

	// Rate limiting
	c.RateLimitRequests = getIntEnv("RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindow = getDurationEnv("RATE_LIMIT_WINDOW", c.RateLimitWindow)

	// Logging
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	// Tracing
	c.TracingEndpoint = getEnv("TRACING_ENDPOINT", c.TracingEndpoint)
	c.TracingEnabled = getBoolEnv("TRACING_ENABLED", c.TracingEnabled)
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.AgentBaseURL == "" && (c.ChatOpsURL == "" || c.RCAURL == "" || c.PredictURL == "") {
		return fmt.Errorf("AGENT_BASE_URL or every per-kind agent URL must be set")
	}
	if c.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests)
	}
	if c.JournalReplicas < 1 {
		return fmt.Errorf("JOURNAL_REPLICAS must be positive, got %d", c.JournalReplicas)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("SSE_HEARTBEAT_INTERVAL must be positive")
	}
	return nil
}

// AgentURL returns the base URL of the agent serving kind.
func (c *Config) AgentURL(kind string) string {
	var url string
	switch kind {
	case "chatops":
		url = c.ChatOpsURL
	case "rca":
		url = c.RCAURL
	case "predict":
		url = c.PredictURL
	}
	if url == "" {
		return c.AgentBaseURL
	}
	return url
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
