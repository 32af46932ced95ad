package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const defaultStatePath = "~/.owui-import/imported-conversations.txt"

// Config holds the environment-sourced settings. CLI flags override these in
// main.
type Config struct {
	BaseURL   string `mapstructure:"OPENWEBUI_BASE_URL"`
	Token     string `mapstructure:"OPENWEBUI_TOKEN"`
	Email     string `mapstructure:"OPENWEBUI_EMAIL"`
	Password  string `mapstructure:"OPENWEBUI_PASSWORD"`
	StatePath string `mapstructure:"OPENWEBUI_IMPORT_STATE"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
}

func Load() (*Config, error) {
	viper.SetDefault("OPENWEBUI_BASE_URL", "http://127.0.0.1:8080/api/v1")
	viper.SetDefault("OPENWEBUI_TOKEN", "")
	viper.SetDefault("OPENWEBUI_EMAIL", "")
	viper.SetDefault("OPENWEBUI_PASSWORD", "")
	viper.SetDefault("OPENWEBUI_IMPORT_STATE", defaultStatePath)
	viper.SetDefault("LOG_LEVEL", "info")

	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.StatePath = ExpandHome(cfg.StatePath)
	return &cfg, nil
}

// ExpandHome resolves a leading ~/ against the user's home directory.
func ExpandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
