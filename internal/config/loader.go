package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for gateway.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("gateway")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: GATEWAY_SERVER_HOST
	viper.SetEnvPrefix("GATEWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a gateway config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper
// from matching the binary "gateway" (no extension) in the current
// directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".gateway"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "gateway"))
		}
	} else {
		paths = append(paths, "/etc/gateway")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for gateway.yaml or
// .yml. Returns the full path of the first match, or empty string if none
// found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "gateway"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the gateway config keys for environment variable
// support. Arrays (backends) are complex to override via env and are left
// to the config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.host")
	_ = viper.BindEnv("server.port")
	_ = viper.BindEnv("server.log_level")

	_ = viper.BindEnv("ledger.dir")
	_ = viper.BindEnv("policy.path")

	_ = viper.BindEnv("evolution.enabled")
	_ = viper.BindEnv("evolution.delivery")

	_ = viper.BindEnv("gates.auto_approve_risk_threshold")
	_ = viper.BindEnv("gates.webhook_secret_hash")
	_ = viper.BindEnv("gates.prompt_timeout_seconds")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the GatewayConfig. Callers that need to apply
// CLI flag overrides (e.g. --dev) before dev defaults and validation run
// should use LoadConfigRaw instead.
func LoadConfig() (*GatewayConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg GatewayConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// does NOT apply dev defaults or validate. Use this when CLI flags may
// override DevMode before validation.
func LoadConfigRaw() (*GatewayConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg GatewayConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env vars
// only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
