package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the runtime configuration for the billing service.
type Config struct {
	App struct {
		Port string `mapstructure:"port"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`
	Account struct {
		BaseURL        string `mapstructure:"baseUrl"`
		TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
	} `mapstructure:"account"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Enabled bool     `mapstructure:"enabled"`
	} `mapstructure:"kafka"`
	Stripe struct {
		APIKey string `mapstructure:"apiKey"`
	} `mapstructure:"stripe"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
	Usage struct {
		DefaultTimezone string `mapstructure:"defaultTimezone"`
	} `mapstructure:"usage"`
}

// LoadConfig reads configuration from config.yaml and the environment.
func LoadConfig(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// A missing .env is fine; the environment may carry everything.
		_ = godotenv.Load(path)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Usage.DefaultTimezone == "" {
		config.Usage.DefaultTimezone = "UTC"
	}

	return &config, nil
}
