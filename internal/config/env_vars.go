package config

import (
	"os"
	"path/filepath"
	"strconv"
)

const (
	appNameVar    = "APP_NAME"
	profileDirVar = "PROFILE_DIR"
	loginRouteVar = "LOGIN_ROUTE"
)

type EnvConfig interface {
	GetAppName() string
	GetProfileDir() string
	GetLoginRoute() string
	GetEnv() string
}

type EnvVars struct {
	file *File
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	if name := os.Getenv(appNameVar); name != "" {
		return name
	}
	if e.file != nil && e.file.App.Name != "" {
		return e.file.App.Name
	}
	return "Back Office"
}

// GetProfileDir returns the per-user directory holding the shared
// session store. All client contexts of the same user point here.
func (e EnvVars) GetProfileDir() string {
	if dir := os.Getenv(profileDirVar); dir != "" {
		return dir
	}
	if e.file != nil && e.file.App.ProfileDir != "" {
		return e.file.App.ProfileDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".backoffice"
	}
	return filepath.Join(home, ".backoffice")
}

func (e EnvVars) GetLoginRoute() string {
	if route := os.Getenv(loginRouteVar); route != "" {
		return route
	}
	if e.file != nil && e.file.App.LoginRoute != "" {
		return e.file.App.LoginRoute
	}
	return "/"
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetEnv returns the value of envVar, or defaultValue when unset.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt returns the integer value of envVar, or defaultValue when
// unset or unparseable.
func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
