package config

import (
	"time"

	"golang-predict-settler/pkg/config"
)

// Settler holds settlement-service specific configuration.
type Settler struct {
	RewardPerWin int64 `mapstructure:"reward_per_win"`

	RedisStreamSettleTimeout     time.Duration `mapstructure:"redis_stream_settle_timeout"`
	RedisStreamAwardTimeout      time.Duration `mapstructure:"redis_stream_award_timeout"`
	RedisStreamRedemptionTimeout time.Duration `mapstructure:"redis_stream_redemption_timeout"`

	SessionFlipInterval time.Duration `mapstructure:"session_flip_interval"`
	SessionFlipTimeout  time.Duration `mapstructure:"session_flip_timeout"`

	SessionOpenCron   string `mapstructure:"session_open_cron"`
	SessionCutoffCron string `mapstructure:"session_cutoff_cron"`
}

// Outbox holds outbox publisher configuration.
type Outbox struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	PollTimeout      time.Duration `mapstructure:"poll_timeout"`
	BatchSize        int           `mapstructure:"batch_size"`
	PublishPerSecond float64       `mapstructure:"publish_per_second"`
}

// Config holds the full configuration for the settlement service.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	Redis    config.Redis    `mapstructure:"redis"`
	Settler  Settler         `mapstructure:"settler"`
	Outbox   Outbox          `mapstructure:"outbox"`
	Telegram config.Telegram `mapstructure:"telegram"`
	Vendor   config.Vendor   `mapstructure:"vendor"`
}

// Load loads the settlement-service configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
