package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     Log     `yaml:"log"`
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
}

type Storage struct {
	// Directory holding the per-session memory files
	Dir string `yaml:"dir" example:"data" validate:"required"`
}

type Server struct {
	// Server name reported to MCP clients
	Name string `yaml:"name" example:"graphmem" validate:"required"`
	// Server version reported to MCP clients
	Version string `yaml:"version" example:"1.0.0" validate:"required"`
}

type Log struct {
	// Minimum level for stderr logging
	Level string `yaml:"level" example:"debug" validate:"required,oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

// Load reads config.yaml from the working directory. The file is
// optional: an MCP host usually spawns the server with no config at all,
// so a missing file just means defaults.
func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil && !os.IsNotExist(err) {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if data != nil {
		if err = yaml.Unmarshal(data, &result); err != nil {
			return nil, oops.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if result.Log.Level == "" {
		result.Log.Level = "debug"
	}
	if result.Storage.Dir == "" {
		result.Storage.Dir = "data"
	}
	if result.Server.Name == "" {
		result.Server.Name = "graphmem"
	}
	if result.Server.Version == "" {
		result.Server.Version = "1.0.0"
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}
