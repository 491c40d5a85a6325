package config

type Config interface {
	EnvConfig
	SessionConfig
	IdentityConfig
}

type mainConfig struct {
	EnvVars
	Session
	Identity
}

// New builds the configuration stack. Resolution order for every
// value is: environment variable, then the optional TOML file, then
// the documented default.
func New() Config {
	file := LoadFileFromEnv()
	return mainConfig{
		EnvVars{file: file},
		Session{file: file},
		Identity{file: file},
	}
}
