package service

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/CZERTAINLY/Plotter/internal/model"
)

// Config holds the settings of the Start daemon. Values come from the
// optional settings file and command line flags, flags win.
type Config struct {
	ConfigFile          string        `mapstructure:"jobConfigFile" validate:"required"`
	StatusFile          string        `mapstructure:"jobStatusFile" validate:"required"`
	ChiaExe             string        `mapstructure:"chiaExe"`
	LogDir              string        `mapstructure:"logDir" validate:"required"`
	ConfigPollInterval  time.Duration `mapstructure:"configPollInterval" validate:"gt=0"`
	MonitorPollInterval time.Duration `mapstructure:"monitorPollInterval" validate:"gt=0"`
	ShutdownGrace       time.Duration `mapstructure:"shutdownGrace" validate:"gte=0"`
	MaxParallel         int           `mapstructure:"maxParallel" validate:"gte=0"`
	LaunchStagger       time.Duration `mapstructure:"launchStagger" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		ConfigFile:          model.DefaultConfigFile,
		StatusFile:          model.DefaultStatusFile,
		ChiaExe:             "chia",
		LogDir:              "logs",
		ConfigPollInterval:  time.Second,
		MonitorPollInterval: 500 * time.Millisecond,
		ShutdownGrace:       5 * time.Second,
	}
}

// SetDefaults registers DefaultConfig values in v.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("jobConfigFile", d.ConfigFile)
	v.SetDefault("jobStatusFile", d.StatusFile)
	v.SetDefault("chiaExe", d.ChiaExe)
	v.SetDefault("logDir", d.LogDir)
	v.SetDefault("configPollInterval", d.ConfigPollInterval)
	v.SetDefault("monitorPollInterval", d.MonitorPollInterval)
	v.SetDefault("shutdownGrace", d.ShutdownGrace)
	v.SetDefault("maxParallel", d.MaxParallel)
	v.SetDefault("launchStagger", d.LaunchStagger)
}

// ParseConfig decodes and validates the daemon settings from v.
func ParseConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding settings: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}
