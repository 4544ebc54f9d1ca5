package config

import "os"

// LoadDebugConfigFromEnv lets CHORUS_DEBUG_* variables switch request logging on without
// editing the config file.
func LoadDebugConfigFromEnv(cfg DebugConfig) DebugConfig {
	if os.Getenv("CHORUS_DEBUG_LOG_REQUESTS") == "1" {
		cfg.LogRequests = true
	}
	if os.Getenv("CHORUS_DEBUG_LOG_RESPONSES") == "1" {
		cfg.LogResponses = true
	}
	if os.Getenv("CHORUS_DEBUG_VALIDATE_ROLES") == "0" {
		cfg.ValidateRoles = false
	}
	if dir := os.Getenv("CHORUS_DEBUG_LOG_DIRECTORY"); dir != "" {
		cfg.LogDirectory = dir
	}
	return cfg
}
