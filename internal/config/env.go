package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "SYNCD_CONFIG"
	EnvDataDir = "SYNCD_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
// These are resolved by ReadEnvOverrides and made available to callers.
type EnvOverrides struct {
	ConfigPath string // SYNCD_CONFIG: override config file path
	DataDir    string // SYNCD_DATA_DIR: override catalog/state directory
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DataDir:    os.Getenv(EnvDataDir),
	}
}

// CLIOverrides holds values derived from command-line flags, taking
// priority over both the config file and environment variables.
type CLIOverrides struct {
	ConfigPath string
	DataDir    string
}

// ResolveConfigPath determines the config file path using the three-layer
// priority: CLI flag > environment variable > platform default.
func ResolveConfigPath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// ResolveDataDir determines the data directory using the same priority
// chain as ResolveConfigPath.
func ResolveDataDir(env EnvOverrides, cli CLIOverrides) string {
	if cli.DataDir != "" {
		return cli.DataDir
	}

	if env.DataDir != "" {
		return env.DataDir
	}

	return DefaultDataDir()
}
