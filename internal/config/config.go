// Package config loads the shell's settings with Viper. Values come, in
// increasing order of precedence, from built-in defaults, a config file,
// COSH_* environment variables and command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName = "cosh"
	envPrefix  = "COSH"
)

// FsFactory returns the filesystem config files are read from.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// Config holds all configurable settings for the shell.
type Config struct {
	Terminal Terminal `mapstructure:"terminal"` // Terminal-related settings
	Prompt   Prompt   `mapstructure:"prompt"`   // Prompt appearance settings
	Log      Log      `mapstructure:"log"`      // Diagnostic logging
}

// Terminal defines readline behaviour for the interactive shell.
type Terminal struct {
	HistoryFile     string `mapstructure:"history_file"`     // Path to shell history file
	HistoryLimit    int    `mapstructure:"history_limit"`    // Maximum number of history entries
	InterruptPrompt string `mapstructure:"interrupt_prompt"` // Text shown on Ctrl-C
	EOFPrompt       string `mapstructure:"exit_message"`     // Text shown on EOF/exit
}

// Prompt defines the colours of the prompt. Colours are names such as
// "green" or "bright blue"; an empty name or "none" leaves the text plain.
type Prompt struct {
	PathColour   string `mapstructure:"path_colour"`   // Colour of the working directory
	StatusColour string `mapstructure:"status_colour"` // Colour of a nonzero exit status
	Bold         bool   `mapstructure:"bold"`          // Bold prompt text
}

// Log configures the slog logger.
type Log struct {
	Level  string `mapstructure:"level"`  // debug, info, warn or error
	Format string `mapstructure:"format"` // text or json
}

// flagKeys maps command-line flag names to the config keys they override.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Load reads the configuration. When path is empty the file "cosh.<ext>" is
// searched for in $HOME/.config/cosh and the current directory, and a missing
// file is not an error. Flags in flags whose names appear in flagKeys
// override the file; flags may be nil. On error the defaults are returned
// alongside it.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {

	v := viper.New()
	v.SetFs(FsFactory())
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return Default(), fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Default(), fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return Default(), fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in settings. It is used as a fallback when
// loading a configuration fails.
func Default() *Config {
	return &Config{
		Terminal: Terminal{
			HistoryFile:     defaultHistoryFile(),
			HistoryLimit:    1000,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		},
		Prompt: Prompt{
			PathColour:   "green",
			StatusColour: "red",
			Bold:         false,
		},
		Log: Log{
			Level:  "warn",
			Format: "text",
		},
	}
}

func setDefaults(v *viper.Viper) {

	def := Default()

	v.SetDefault("terminal.history_file", def.Terminal.HistoryFile)
	v.SetDefault("terminal.history_limit", def.Terminal.HistoryLimit)
	v.SetDefault("terminal.interrupt_prompt", def.Terminal.InterruptPrompt)
	v.SetDefault("terminal.exit_message", def.Terminal.EOFPrompt)

	v.SetDefault("prompt.path_colour", def.Prompt.PathColour)
	v.SetDefault("prompt.status_colour", def.Prompt.StatusColour)
	v.SetDefault("prompt.bold", def.Prompt.Bold)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cosh_history")
}
