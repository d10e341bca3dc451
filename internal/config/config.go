package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"nimo/identity-platform/verification-engine/internal/engine"
	"nimo/identity-platform/verification-engine/internal/ledger"
	"nimo/identity-platform/verification-engine/internal/reasoning"
	"nimo/identity-platform/verification-engine/internal/rewards"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig         `json:"server"`
	Database  DatabaseConfig       `json:"database"`
	Redis     RedisConfig          `json:"redis"`
	Reasoning reasoning.Config     `json:"reasoning"`
	Engine    EngineConfig         `json:"engine"`
	Rewards   rewards.Config       `json:"rewards"`
	Ledger    ledger.BridgeConfig  `json:"ledger"`
	Stellar   ledger.StellarConfig `json:"stellar"`
	Logging   LoggingConfig        `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig configures the optional shared processed-reward-key store.
// An empty address selects the in-memory store.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// EngineConfig tunes the decision pipeline
type EngineConfig struct {
	MinVerifyConfidence float64               `json:"min_verify_confidence"`
	BackendTimeout      time.Duration         `json:"backend_timeout"`
	Batch               engine.BatchConfig    `json:"batch"`
	Fallback            engine.FallbackConfig `json:"fallback"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "nimo_verification",
			SSLMode: "disable",
		},
		Engine: EngineConfig{
			MinVerifyConfidence: 0.6,
			BackendTimeout:      15 * time.Second,
			Batch:               engine.DefaultBatchConfig(),
		},
		Rewards: rewards.DefaultConfig(),
		Ledger:  ledger.DefaultBridgeConfig(),
		Reasoning: reasoning.Config{
			BaseURL: "http://localhost:8090",
			Timeout: 10 * time.Second,
		},
	}

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if url := os.Getenv("REASONING_URL"); url != "" {
		config.Reasoning.BaseURL = url
	}
	if key := os.Getenv("STELLAR_ISSUER_SECRET"); key != "" {
		config.Stellar.IssuerSecretKey = key
	}
	if net := os.Getenv("STELLAR_NETWORK"); net != "" {
		config.Stellar.Network = net
	}
	if enabled := os.Getenv("USDC_PAYMENTS_ENABLED"); enabled != "" {
		config.Rewards.USDCPaymentsEnabled = enabled == "true"
	}
	if threshold := os.Getenv("MIN_CONFIDENCE_THRESHOLD"); threshold != "" {
		if v, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Rewards.MinConfidenceThreshold = v
		}
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
