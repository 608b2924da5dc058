// Package config loads router configuration from environment variables
// (with "__" nesting, per the recognized keys below) and an optional YAML
// base file. Unknown keys are ignored; required keys fail fast at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the router.
type Config struct {
	GRPCEndpoint     string
	JSONRPCEndpoint  string
	GraphQLEndpoint  string
	Address          string
	Ed25519SecretHex string
	MaxInflight      int
	RatePerSec       int
	UseGRPCExecute   bool

	DeepBook DeepBookConfig

	Sponsorship *SponsorshipConfig

	Server        ServerConfig
	Observability ObservabilityConfig
}

type DeepBookConfig struct {
	Environment   string
	ManagerObject string
	ManagerLabel  string
	Indexer       string
}

type SponsorshipConfig struct {
	SponsorAddress     string
	SponsorKeyHex      string
	PerUserBudget      uint64
	PerTxLimit         uint64
	BudgetWindow       time.Duration
	MaxTxPerWindow     uint64
	MaxGasPerWindow    uint64
	AbuseWindow        time.Duration
	RouteBudgetDefault uint64
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ObservabilityConfig struct {
	ServiceName string
	LogLevel    string
	LogFormat   string
}

// Load reads an optional YAML file (if configPath is non-empty and exists)
// as the base layer, then overlays environment variables with "__" nesting
// on top, matching the recognized keys in spec §6.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MaxInflight: 64,
		RatePerSec:  200,
		DeepBook: DeepBookConfig{
			Environment:  "mainnet",
			ManagerLabel: "MANAGER_1",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8090",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Observability: ObservabilityConfig{
			ServiceName: "venue-router",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.GRPCEndpoint = getEnv("GRPC_ENDPOINT", cfg.GRPCEndpoint)
	cfg.JSONRPCEndpoint = getEnv("JSONRPC_ENDPOINT", cfg.JSONRPCEndpoint)
	cfg.GraphQLEndpoint = getEnv("GRAPHQL_ENDPOINT", cfg.GraphQLEndpoint)
	cfg.Address = getEnv("ADDRESS", cfg.Address)
	cfg.Ed25519SecretHex = getEnv("ED25519_SECRET_HEX", cfg.Ed25519SecretHex)
	cfg.MaxInflight = getIntEnv("MAX_INFLIGHT", cfg.MaxInflight)
	cfg.RatePerSec = getIntEnv("RATE_PER_SEC", cfg.RatePerSec)
	cfg.UseGRPCExecute = getBoolEnv("USE_GRPC_EXECUTE", cfg.UseGRPCExecute)

	cfg.DeepBook.Environment = getEnv("DEEPBOOK__ENVIRONMENT", cfg.DeepBook.Environment)
	cfg.DeepBook.ManagerObject = getEnv("DEEPBOOK__MANAGER_OBJECT", cfg.DeepBook.ManagerObject)
	cfg.DeepBook.ManagerLabel = getEnv("DEEPBOOK__MANAGER_LABEL", cfg.DeepBook.ManagerLabel)
	cfg.DeepBook.Indexer = getEnv("DEEPBOOK__INDEXER", cfg.DeepBook.Indexer)

	if addr := getEnv("SPONSORSHIP__SPONSOR_ADDRESS", ""); addr != "" {
		sp := cfg.Sponsorship
		if sp == nil {
			sp = &SponsorshipConfig{
				PerUserBudget:   getUintEnv("SPONSORSHIP__PER_USER_BUDGET", 1_000_000_000),
				PerTxLimit:      getUintEnv("SPONSORSHIP__PER_TX_LIMIT", 100_000_000),
				BudgetWindow:    getDurationEnv("SPONSORSHIP__BUDGET_WINDOW", time.Hour),
				MaxTxPerWindow:  getUintEnv("SPONSORSHIP__MAX_TX_PER_WINDOW", 1000),
				MaxGasPerWindow: getUintEnv("SPONSORSHIP__MAX_GAS_PER_WINDOW", 100_000_000_000),
				AbuseWindow:     getDurationEnv("SPONSORSHIP__ABUSE_WINDOW", time.Hour),
			}
		}
		sp.SponsorAddress = addr
		sp.SponsorKeyHex = getEnv("SPONSORSHIP__SPONSOR_KEY_HEX", sp.SponsorKeyHex)
		cfg.Sponsorship = sp
	}

	cfg.Server.Host = getEnv("SERVER__HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("SERVER__PORT", cfg.Server.Port)
	cfg.Observability.LogLevel = getEnv("OBSERVABILITY__LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = getEnv("OBSERVABILITY__LOG_FORMAT", cfg.Observability.LogFormat)
}

// Validate checks that required keys are present, failing fast at startup.
func (c *Config) Validate() error {
	if c.GRPCEndpoint == "" && c.JSONRPCEndpoint == "" {
		return fmt.Errorf("at least one of GRPC_ENDPOINT or JSONRPC_ENDPOINT is required")
	}
	if c.Address == "" {
		return fmt.Errorf("ADDRESS is required")
	}
	if c.Ed25519SecretHex == "" {
		return fmt.Errorf("ED25519_SECRET_HEX is required")
	}
	if c.MaxInflight <= 0 {
		return fmt.Errorf("MAX_INFLIGHT must be positive")
	}
	if c.Sponsorship != nil && c.Sponsorship.SponsorKeyHex == "" {
		return fmt.Errorf("SPONSORSHIP__SPONSOR_KEY_HEX is required when sponsorship is configured")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getUintEnv(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
