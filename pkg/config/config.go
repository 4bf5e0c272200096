package config

import "os"

// Config holds runtime configuration for the warden binary.
type Config struct {
	LogLevel        string
	DatabasePath    string
	TrustPolicyPath string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbPath := os.Getenv("WARDEN_DB")
	if dbPath == "" {
		dbPath = "warden.db"
	}

	policyPath := os.Getenv("WARDEN_TRUST_POLICY")
	if policyPath == "" {
		policyPath = "trust_policy.yaml"
	}

	return &Config{
		LogLevel:        logLevel,
		DatabasePath:    dbPath,
		TrustPolicyPath: policyPath,
	}
}
