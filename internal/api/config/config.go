package config

import (
	"golang-predict-settler/pkg/config"
)

// Settlement holds the award parameters the revision-ingest path shares
// with the settlement service.
type Settlement struct {
	RewardPerWin int64 `mapstructure:"reward_per_win"`
}

// Config holds the full configuration for the api service.
type Config struct {
	App       config.App       `mapstructure:"app"`
	Logger    config.Logger    `mapstructure:"logger"`
	Database  config.Database  `mapstructure:"database"`
	Redis     config.Redis     `mapstructure:"redis"`
	API       config.API       `mapstructure:"api"`
	RateLimit config.RateLimit `mapstructure:"rate_limit"`
	Telegram  config.Telegram  `mapstructure:"telegram"`
	Vendor    config.Vendor    `mapstructure:"vendor"`
	Settler   Settlement       `mapstructure:"settler"`
}

// Load loads the api-service configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
