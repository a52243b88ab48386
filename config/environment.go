package config

import (
	"os"
	"strings"
)

const (
	appEnvVar = "APP_ENV"

	// EnvironmentDevelopment is the default environment when APP_ENV is
	// unset.
	EnvironmentDevelopment = "development"
	// EnvironmentProduction identifies production deployments.
	EnvironmentProduction = "production"
	// EnvironmentStaging identifies staging deployments.
	EnvironmentStaging = "staging"
)

var environmentAliases = map[string]string{
	"prod": EnvironmentProduction,
	"stag": EnvironmentStaging,
	"dev":  EnvironmentDevelopment,
}

// AppEnvironment reads the application environment from APP_ENV,
// normalising common aliases and defaulting to development.
func AppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return EnvironmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// IsProductionLike reports whether the environment should be strict
// about configuration gaps, e.g. refusing to run without an export
// destination. Production and staging qualify.
func IsProductionLike(env string) bool {
	switch env {
	case EnvironmentProduction, EnvironmentStaging:
		return true
	default:
		return false
	}
}
