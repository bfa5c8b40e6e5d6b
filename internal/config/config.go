package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Name         string        `mapstructure:"name"`
	Rooms        []string      `mapstructure:"rooms"`
	ServerURL    string        `mapstructure:"server_url"`
	APIKey       string        `mapstructure:"api_key"`
	UID          string        `mapstructure:"uid"`
	Log          bool          `mapstructure:"log"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Load читает config.yaml (текущая директория или ./conf), поверх —
// переменные окружения SNAKEBOT_*. Отсутствие файла не ошибка:
// остаются значения по умолчанию.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./conf")

	v.SetEnvPrefix("SNAKEBOT")
	v.AutomaticEnv()

	// пустые значения по умолчанию нужны, чтобы AutomaticEnv видел ключи
	v.SetDefault("name", "")
	v.SetDefault("api_key", "")
	v.SetDefault("uid", "")
	v.SetDefault("server_url", "https://multisnake.xyz")
	v.SetDefault("rooms", []string{"classic-classic_0", "classic-classic_1"})
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("log", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
