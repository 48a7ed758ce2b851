package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the dispatcher configuration
type Config struct {
	Server         ServerConfig             `yaml:"server"`
	Database       DatabaseConfig           `yaml:"database"`
	Networks       map[string]NetworkConfig `yaml:"networks" validate:"required,min=1,dive"`
	Keys           KeysConfig               `yaml:"keys"`
	Assets         AssetsConfig             `yaml:"assets"`
	Queue          QueueConfig              `yaml:"queue"`
	Pipeline       PipelineConfig           `yaml:"pipeline"`
	Reconciliation ReconciliationConfig     `yaml:"reconciliation"`
	Auth           AuthConfig               `yaml:"auth"`
	Monitoring     MonitoringConfig         `yaml:"monitoring"`
	Logging        LoggingConfig            `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"60s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"contract_jobs" validate:"required"`
	SSLMode  string `yaml:"ssl_mode" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
	MaxConns int    `yaml:"max_conns" default:"20" validate:"min=1"`
}

// NetworkConfig describes one EVM network a job can target
type NetworkConfig struct {
	RPCURL         string  `yaml:"rpc_url" validate:"required,url"`
	ChainID        int64   `yaml:"chain_id" validate:"required,gt=0"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" default:"10"`
	RateLimitBurst int     `yaml:"rate_limit_burst" default:"20"`
}

// KeysConfig controls how team keystores are decrypted
type KeysConfig struct {
	PassphraseEnv     string `yaml:"passphrase_env" default:"KEYSTORE_PASSPHRASE"`
	DefaultPassphrase string `yaml:"default_passphrase"`
}

// Passphrase resolves the keystore passphrase, preferring the environment.
func (c *KeysConfig) Passphrase() string {
	if c.PassphraseEnv != "" {
		if v := os.Getenv(c.PassphraseEnv); v != "" {
			return v
		}
	}
	return c.DefaultPassphrase
}

// AssetsConfig contains IPFS settings for metadata images
type AssetsConfig struct {
	APIURL     string        `yaml:"api_url"`
	GatewayURL string        `yaml:"gateway_url" default:"ipfs://"`
	Timeout    time.Duration `yaml:"timeout" default:"30s"`
}

// QueueConfig contains job dispatcher settings
type QueueConfig struct {
	Workers      int           `yaml:"workers" default:"4" validate:"min=1"`
	PollInterval time.Duration `yaml:"poll_interval" default:"500ms"`
	InitialDelay time.Duration `yaml:"initial_delay" default:"500ms"`
	JobTimeout   time.Duration `yaml:"job_timeout" default:"5m"`
}

// PipelineConfig contains transaction submission settings
type PipelineConfig struct {
	ReceiptTimeout      time.Duration `yaml:"receipt_timeout" default:"2m"`
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval" default:"2s"`
}

// ReconciliationConfig contains settings for pending transaction reconciliation
type ReconciliationConfig struct {
	InitialTimeout time.Duration `yaml:"initial_timeout" default:"3m"`
	Interval       time.Duration `yaml:"interval" default:"1m"`
	BatchSize      int           `yaml:"batch_size" default:"50" validate:"min=1"`
	ClaimTTL       time.Duration `yaml:"claim_ttl" default:"2m"`
	MaxAttempts    int           `yaml:"max_attempts" default:"20" validate:"min=1"`
	BaseBackoff    time.Duration `yaml:"base_backoff" default:"30s"`
	MaxBackoff     time.Duration `yaml:"max_backoff" default:"1h"`
}

// AuthConfig contains JWT validation settings. Empty JWKSURL disables auth.
type AuthConfig struct {
	JWKSURL   string `yaml:"jwks_url" validate:"omitempty,url"`
	Issuer    string `yaml:"issuer"`
	TeamClaim string `yaml:"team_claim" default:"team_id"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool   `yaml:"enabled" default:"true"`
	MetricsPath string `yaml:"metrics_path" default:"/metrics"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// Load reads the YAML file at configPath, applies defaults, expands
// ${ENV} references, and validates the result.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	networks := make(map[string]NetworkConfig, len(cfg.Networks))
	for name, network := range cfg.Networks {
		if err := defaults.Set(&network); err != nil {
			return nil, fmt.Errorf("failed to apply defaults for network %s: %w", name, err)
		}
		networks[strings.ToLower(name)] = network
	}
	cfg.Networks = networks

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	// the reconciler must not claim rows the pipeline is still waiting on
	if cfg.Reconciliation.InitialTimeout < cfg.Pipeline.ReceiptTimeout {
		return nil, fmt.Errorf("config validation failed: reconciliation.initial_timeout %s is shorter than pipeline.receipt_timeout %s",
			cfg.Reconciliation.InitialTimeout, cfg.Pipeline.ReceiptTimeout)
	}

	return &cfg, nil
}

// Network returns the named network configuration.
func (c *Config) Network(name string) (NetworkConfig, bool) {
	n, ok := c.Networks[strings.ToLower(name)]
	return n, ok
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
