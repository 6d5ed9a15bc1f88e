package config

import (
	"os"
	"path/filepath"
)

const (
	configFileVar = "CONFIG_FILE"
	appNameVar    = "APP_NAME"
	envVar        = "ENV"
	folderEnvVar  = "FOLDER"
	logLevelVar   = "LOG_LEVEL"
)

// values resolves a setting from the environment, then the config file, then the default.
type values struct {
	file map[string]string
}

func (v *values) get(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	if v != nil {
		if value, ok := v.file[name]; ok && value != "" {
			return value
		}
	}
	return defaultValue
}

type EnvVars struct {
	v *values
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.get(appNameVar, "Go Auth Client")
}

func (e EnvVars) GetEnv() string {
	return e.v.get(envVar, "DEV")
}

func (e EnvVars) GetDataFolder() string {
	return e.v.get(folderEnvVar, "./data")
}

func (e EnvVars) GetLogLevel() string {
	return e.v.get(logLevelVar, "info")
}

// dataPath joins name onto the data folder.
func (e EnvVars) dataPath(name string) string {
	return filepath.Join(e.GetDataFolder(), name)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
