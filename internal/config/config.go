// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment is the deployment stage.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config holds the whole service configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Server   ServerConfig   `yaml:"server"`
	AWS      AWSConfig      `yaml:"aws"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Events   EventsConfig   `yaml:"events"`
	Auth     AuthConfig     `yaml:"auth"`
	CORS     CORSConfig     `yaml:"cors"`
	Logging  LoggingConfig  `yaml:"logging"`
	Features FeatureFlags   `yaml:"features"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Cascade  CascadeConfig  `yaml:"cascade"`

	// ConfigFile is the YAML file the configuration was read from, if any.
	ConfigFile string `yaml:"-"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AWSConfig struct {
	Region string `yaml:"region"`
	// Endpoint overrides point the SDK clients at local stand-ins.
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
	S3Endpoint       string `yaml:"s3_endpoint"`
}

type DatabaseConfig struct {
	TableName         string        `yaml:"table_name"`
	GSI1Name          string        `yaml:"gsi1_name"`
	GSI2Name          string        `yaml:"gsi2_name"`
	IndexPollInterval time.Duration `yaml:"index_poll_interval"`
	// Driver selects "dynamodb" or "memory".
	Driver string `yaml:"driver"`
}

type StorageConfig struct {
	Bucket       string        `yaml:"bucket"`
	UploadURLTTL time.Duration `yaml:"upload_url_ttl"`
	AvatarURLTTL time.Duration `yaml:"avatar_url_ttl"`
}

type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	BusName string `yaml:"bus_name"`
	Source  string `yaml:"source"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWTIssuer string        `yaml:"jwt_issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	GitHub OAuthClient `yaml:"github"`
	Google OAuthClient `yaml:"google"`

	// FrontendURL receives the token after an OAuth sign-in.
	FrontendURL string `yaml:"frontend_url"`
}

type OAuthClient struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Configured reports whether the provider has credentials.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type FeatureFlags struct {
	EnableMetrics        bool `yaml:"enable_metrics"`
	EnableTracing        bool `yaml:"enable_tracing"`
	EnableCircuitBreaker bool `yaml:"enable_circuit_breaker"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type CascadeConfig struct {
	Interval       time.Duration `yaml:"interval"`
	StepRetries    int           `yaml:"step_retries"`
	StepRetryDelay time.Duration `yaml:"step_retry_delay"`
	MaxJobAttempts int           `yaml:"max_job_attempts"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Address:         ":3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		AWS: AWSConfig{Region: "us-east-1"},
		Database: DatabaseConfig{
			TableName:         "Qalam",
			GSI1Name:          "GSI1",
			GSI2Name:          "GSI2",
			IndexPollInterval: 30 * time.Second,
			Driver:            "dynamodb",
		},
		Storage: StorageConfig{
			Bucket:       "qalam-media-global",
			UploadURLTTL: time.Hour,
			AvatarURLTTL: 7 * 24 * time.Hour,
		},
		Events: EventsConfig{
			BusName: "default",
			Source:  "qalam.backend",
		},
		Auth: AuthConfig{
			JWTIssuer: "qalam-backend",
			TokenTTL:  24 * time.Hour,
			GitHub: OAuthClient{
				RedirectURL: "http://localhost:3000/auth/github/callback",
			},
			Google: OAuthClient{
				RedirectURL: "http://localhost:3000/auth/google/callback",
			},
			FrontendURL: "http://localhost:5173",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000", "http://localhost:3001"},
		},
		Logging: LoggingConfig{Level: "info"},
		Features: FeatureFlags{
			EnableMetrics:        true,
			EnableCircuitBreaker: true,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "qalam-backend",
		},
		Cascade: CascadeConfig{
			Interval:       30 * time.Second,
			StepRetries:    3,
			StepRetryDelay: 200 * time.Millisecond,
			MaxJobAttempts: 10,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if set) and the environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
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
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = Environment(getEnv("ENVIRONMENT", string(c.Environment)))

	if port := os.Getenv("PORT"); port != "" {
		c.Server.Address = ":" + port
	}
	c.Server.Address = getEnv("SERVER_ADDRESS", c.Server.Address)

	c.AWS.Region = getEnv("AWS_REGION", c.AWS.Region)
	c.AWS.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", c.AWS.DynamoDBEndpoint)
	c.AWS.S3Endpoint = getEnv("S3_ENDPOINT", c.AWS.S3Endpoint)

	c.Database.TableName = getEnv("DYNAMODB_TABLE_NAME", c.Database.TableName)
	c.Database.GSI1Name = getEnv("GSI1_NAME", c.Database.GSI1Name)
	c.Database.GSI2Name = getEnv("GSI2_NAME", c.Database.GSI2Name)
	c.Database.IndexPollInterval = getEnvDuration("INDEX_POLL_INTERVAL", c.Database.IndexPollInterval)
	c.Database.Driver = getEnv("STORE_DRIVER", c.Database.Driver)

	c.Storage.Bucket = getEnv("S3_BUCKET_NAME", c.Storage.Bucket)

	c.Events.Enabled = getEnvBool("ENABLE_EVENTS", c.Events.Enabled)
	c.Events.BusName = getEnv("EVENT_BUS_NAME", c.Events.BusName)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnv("JWT_ISSUER", c.Auth.JWTIssuer)
	c.Auth.TokenTTL = getEnvDuration("TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.GitHub.ClientID = getEnv("GITHUB_CLIENT_ID", c.Auth.GitHub.ClientID)
	c.Auth.GitHub.ClientSecret = getEnv("GITHUB_CLIENT_SECRET", c.Auth.GitHub.ClientSecret)
	c.Auth.GitHub.RedirectURL = getEnv("GITHUB_REDIRECT_URL", c.Auth.GitHub.RedirectURL)
	c.Auth.Google.ClientID = getEnv("GOOGLE_CLIENT_ID", c.Auth.Google.ClientID)
	c.Auth.Google.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", c.Auth.Google.ClientSecret)
	c.Auth.Google.RedirectURL = getEnv("GOOGLE_REDIRECT_URL", c.Auth.Google.RedirectURL)
	c.Auth.FrontendURL = getEnv("FRONTEND_URL", c.Auth.FrontendURL)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)

	c.Features.EnableMetrics = getEnvBool("ENABLE_METRICS", c.Features.EnableMetrics)
	c.Features.EnableTracing = getEnvBool("ENABLE_TRACING", c.Features.EnableTracing)
	c.Features.EnableCircuitBreaker = getEnvBool("ENABLE_CIRCUIT_BREAKER", c.Features.EnableCircuitBreaker)

	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.ServiceName = getEnv("OTEL_SERVICE_NAME", c.Tracing.ServiceName)

	c.Cascade.Interval = getEnvDuration("CASCADE_INTERVAL", c.Cascade.Interval)
	c.Cascade.StepRetries = getEnvInt("CASCADE_STEP_RETRIES", c.Cascade.StepRetries)
	c.Cascade.MaxJobAttempts = getEnvInt("CASCADE_MAX_JOB_ATTEMPTS", c.Cascade.MaxJobAttempts)
}

// Validate checks required fields.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	switch c.Database.Driver {
	case "dynamodb", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Database.Driver))
	}
	if c.Database.TableName == "" {
		errs = append(errs, errors.New("table name is required"))
	}
	if c.Database.GSI1Name == "" || c.Database.GSI2Name == "" {
		errs = append(errs, errors.New("both index names are required"))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage bucket is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
		}
		if c.Database.Driver == "memory" {
			errs = append(errs, errors.New("the memory store cannot be used in production"))
		}
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
