package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

const configFileEnvVar = "SESSION_CONFIG_FILE"

// File mirrors the optional TOML configuration file. All fields are
// optional; zero values fall through to environment variables and
// built-in defaults.
type File struct {
	App struct {
		Name       string `toml:"name"`
		ProfileDir string `toml:"profile_dir"`
		LoginRoute string `toml:"login_route"`
	} `toml:"app"`

	Session struct {
		MaxSessionDurationMinutes  int   `toml:"max_session_duration_minutes"`
		InactivityTimeoutMinutes   int   `toml:"inactivity_timeout_minutes"`
		ActivityThrottleSeconds    int   `toml:"activity_throttle_seconds"`
		RevalidateIntervalSeconds  int   `toml:"revalidate_interval_seconds"`
		RestoreAnnounceDelayMillis int   `toml:"restore_announce_delay_millis"`
		ShowExpirationNotice       *bool `toml:"show_expiration_notice"`
	} `toml:"session"`

	Identity struct {
		TokenURL string `toml:"token_url"`
		BaseURL  string `toml:"base_url"`
		ClientID string `toml:"client_id"`
	} `toml:"identity"`
}

// LoadFile parses the TOML file at path.
func LoadFile(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFileFromEnv loads the file named by SESSION_CONFIG_FILE, or
// "session.toml" in the working directory when present. A missing or
// unparseable file yields nil: configuration then comes from the
// environment and defaults alone.
func LoadFileFromEnv() *File {
	path := os.Getenv(configFileEnvVar)
	if path == "" {
		path = "session.toml"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	f, err := LoadFile(path)
	if err != nil {
		return nil
	}
	return f
}
