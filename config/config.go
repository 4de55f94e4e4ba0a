package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/stacksats/dca/storage"
)

type Config struct {
	Server struct {
		Host     string `mapstructure:"host" json:"host,omitempty"`
		Port     int64  `mapstructure:"port" json:"port,omitempty"`
		Database struct {
			DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
		} `mapstructure:"database" json:"database,omitempty"`
		CronSecret string `mapstructure:"cron_secret" json:"cron_secret,omitempty"`
	} `mapstructure:"server" json:"server"`

	Wallet struct {
		ServiceURL string `mapstructure:"service_url" json:"service_url,omitempty"`
		APIKey     string `mapstructure:"api_key" json:"api_key,omitempty"`
	} `mapstructure:"wallet" json:"wallet,omitempty"`

	Chain struct {
		RpcURL      string `mapstructure:"rpc_url" json:"rpc_url,omitempty"`
		DCAContract string `mapstructure:"dca_contract" json:"dca_contract,omitempty"`
	} `mapstructure:"chain" json:"chain,omitempty"`

	DCA struct {
		// Cron spec for the scheduled batch trigger.
		Schedule string `mapstructure:"schedule" json:"schedule,omitempty"`
		// Minimum interval between two executions within one batch.
		PacingSeconds int `mapstructure:"pacing_seconds" json:"pacing_seconds,omitempty"`
		// TTL of the per-config execution claim.
		ClaimTTLSeconds int `mapstructure:"claim_ttl_seconds" json:"claim_ttl_seconds,omitempty"`
	} `mapstructure:"dca" json:"dca,omitempty"`

	Redis storage.RedisConfig `mapstructure:"redis" json:"redis,omitempty"`

	Datadog struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port string `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"datadog" json:"datadog"`
}

func GetConfigure() (*Config, error) {
	configName := os.Getenv("DCA_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}

	return ReadConfig(configName)
}

func ReadConfig(configName string) (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("dca.schedule", "@hourly")
	viper.SetDefault("dca.pacing_seconds", 1)
	viper.SetDefault("dca.claim_ttl_seconds", 300)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg Config
	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}
