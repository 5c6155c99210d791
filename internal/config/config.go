package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries the process configuration, populated from the environment
// with an optional config file alongside the binary.
type Config struct {
	APIPort           string        `mapstructure:"API_PORT"`
	DBPath            string        `mapstructure:"DB_PATH"`
	AutoMatchInterval time.Duration `mapstructure:"AUTO_MATCH_INTERVAL"`
	MarketOrderPolicy string        `mapstructure:"MARKET_ORDER_POLICY"`
	SelfTradePolicy   string        `mapstructure:"SELF_TRADE_POLICY"`
	Debug             bool          `mapstructure:"DEBUG"`
}

// Load reads configuration from the environment and, when present, a
// config file in the working directory. AUTO_MATCH_INTERVAL of zero keeps
// matching strictly request-triggered.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("API_PORT", "8085")
	v.SetDefault("DB_PATH", "matching.db")
	v.SetDefault("AUTO_MATCH_INTERVAL", time.Duration(0))
	v.SetDefault("MARKET_ORDER_POLICY", "discard")
	v.SetDefault("SELF_TRADE_POLICY", "allow")
	v.SetDefault("DEBUG", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
