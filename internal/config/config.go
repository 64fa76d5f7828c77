// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/better-wallet/controller/internal/sealing"
	"github.com/better-wallet/controller/internal/validation"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config holds configuration for the relay proxy and the controller CLI.
// Mode-specific requirements are checked by ValidateProxy and ValidateStorage.
type Config struct {
	// Relay proxy
	ListenAddr        string  `validate:"required"`
	UpstreamRPCURL    string  `validate:"omitempty,url"`
	ChainID           string  `validate:"omitempty,felt"`
	RelayerAddress    string  `validate:"omitempty,felt"`
	RelayerPrivateKey string  `validate:"omitempty,hexadecimal"`
	FeeMultiplier     float64 `validate:"gt=0"`
	MaxBodySize       int64   `validate:"gt=0"`
	RateLimitEnabled  bool
	RateLimitRPS      int `validate:"gt=0"`
	RateLimitBurst    int `validate:"gt=0"`
	MetricsEnabled    bool

	// Storage
	StorageBackend string `validate:"oneof=memory file postgres"`
	StorageDir     string
	PostgresDSN    string

	// Sealing
	SealingProvider        string `validate:"oneof=none local aws-kms vault"`
	SealingLocalKey        string
	SealingAWSKeyID        string
	SealingAWSRegion       string
	SealingVaultAddress    string `validate:"omitempty,url"`
	SealingVaultToken      string
	SealingVaultTransitKey string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        getEnv("PROXY_LISTEN_ADDR", ":8545"),
		UpstreamRPCURL:    getEnv("UPSTREAM_RPC_URL", ""),
		ChainID:           getEnv("CHAIN_ID", ""),
		RelayerAddress:    getEnv("RELAYER_ADDRESS", ""),
		RelayerPrivateKey: getEnv("RELAYER_PRIVATE_KEY", ""),
		FeeMultiplier:     getEnvFloat("RELAY_FEE_MULTIPLIER", 1.1),
		MaxBodySize:       int64(getEnvInt("MAX_BODY_SIZE", 1<<20)),
		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", false),
		RateLimitRPS:      getEnvInt("RATE_LIMIT_RPS", 50),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 100),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),

		StorageBackend: getEnv("STORAGE_BACKEND", StorageMemory),
		StorageDir:     getEnv("STORAGE_DIR", defaultStorageDir()),
		PostgresDSN:    getEnv("POSTGRES_DSN", ""),

		SealingProvider:        getEnv("SEALING_PROVIDER", string(sealing.ProviderNone)),
		SealingLocalKey:        getEnv("SEALING_LOCAL_KEY", ""),
		SealingAWSKeyID:        getEnv("SEALING_AWS_KEY_ID", ""),
		SealingAWSRegion:       getEnv("SEALING_AWS_REGION", ""),
		SealingVaultAddress:    getEnv("SEALING_VAULT_ADDRESS", ""),
		SealingVaultToken:      getEnv("SEALING_VAULT_TOKEN", ""),
		SealingVaultTransitKey: getEnv("SEALING_VAULT_TRANSIT_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks field formats and cross-field sealing requirements.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}

	switch sealing.ProviderType(c.SealingProvider) {
	case sealing.ProviderLocal:
		if c.SealingLocalKey == "" {
			return fmt.Errorf("SEALING_LOCAL_KEY is required when SEALING_PROVIDER is 'local'")
		}
	case sealing.ProviderAWSKMS:
		if c.SealingAWSKeyID == "" {
			return fmt.Errorf("SEALING_AWS_KEY_ID is required when SEALING_PROVIDER is 'aws-kms'")
		}
	case sealing.ProviderVault:
		if c.SealingVaultAddress == "" || c.SealingVaultToken == "" || c.SealingVaultTransitKey == "" {
			return fmt.Errorf("SEALING_VAULT_ADDRESS, SEALING_VAULT_TOKEN and SEALING_VAULT_TRANSIT_KEY are required when SEALING_PROVIDER is 'vault'")
		}
	}

	return nil
}

// ValidateProxy checks the settings the relay proxy cannot start without.
func (c *Config) ValidateProxy() error {
	if c.UpstreamRPCURL == "" {
		return fmt.Errorf("UPSTREAM_RPC_URL is required")
	}
	if c.RelayerAddress == "" {
		return fmt.Errorf("RELAYER_ADDRESS is required")
	}
	if err := validation.ValidateAddress(c.RelayerAddress); err != nil {
		return fmt.Errorf("RELAYER_ADDRESS: %w", err)
	}
	if c.RelayerPrivateKey == "" {
		return fmt.Errorf("RELAYER_PRIVATE_KEY is required")
	}
	if err := validation.ValidateFeeMultiplier(c.FeeMultiplier); err != nil {
		return fmt.Errorf("RELAY_FEE_MULTIPLIER: %w", err)
	}
	return nil
}

// ValidateStorage checks the settings of the selected storage backend.
func (c *Config) ValidateStorage() error {
	switch c.StorageBackend {
	case StorageMemory:
	case StorageFile:
		if c.StorageDir == "" {
			return fmt.Errorf("STORAGE_DIR is required when STORAGE_BACKEND is 'file'")
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORAGE_BACKEND is 'postgres'")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of memory, file, postgres, got: %s", c.StorageBackend)
	}
	return nil
}

// Sealing returns the sealing provider settings.
func (c *Config) Sealing() *sealing.Config {
	return &sealing.Config{
		Provider:        c.SealingProvider,
		LocalKey:        c.SealingLocalKey,
		AWSKeyID:        c.SealingAWSKeyID,
		AWSRegion:       c.SealingAWSRegion,
		VaultAddress:    c.SealingVaultAddress,
		VaultToken:      c.SealingVaultToken,
		VaultTransitKey: c.SealingVaultTransitKey,
	}
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".controller"
	}
	return filepath.Join(home, ".controller")
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	valueStr = strings.ToLower(valueStr)
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}
