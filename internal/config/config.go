// Package config loads the supervisor's optional on-disk configuration file.
//
// Grounded on alex's use of spf13/viper for layered config (go.mod's
// "github.com/spf13/viper" require); generalized to a
// {model, fallbackModel?, defaults:{agent?}, pool:{maxConcurrent?}} shape,
// with unknown keys ignored and absent keys defaulted.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/ocmcp/supervisor/internal/supervisorlog"
)

// Config is the supervisor's resolved configuration.
type Config struct {
	Model         string
	FallbackModel string
	DefaultAgent  string
	MaxConcurrent int
	WorkerBinary  string
}

const (
	defaultMaxConcurrent = 5
	defaultWorkerBinary  = "opencode"
)

// Load reads configPath (if present) and overlays it on defaults. A missing
// or corrupt file is never fatal: it is logged once and defaults are used.
func Load(configPath string, logger supervisorlog.Logger) *Config {
	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault("model", "")
	v.SetDefault("fallbackModel", "")
	v.SetDefault("defaults.agent", "")
	v.SetDefault("pool.maxConcurrent", defaultMaxConcurrent)
	v.SetDefault("workerBinary", defaultWorkerBinary)

	if strings.TrimSpace(configPath) != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if logger != nil {
				logger.Warn("failed to read config file %s, using defaults: %v", configPath, err)
			}
		}
	}

	maxConcurrent := v.GetInt("pool.maxConcurrent")
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	workerBinary := v.GetString("workerBinary")
	if strings.TrimSpace(workerBinary) == "" {
		workerBinary = defaultWorkerBinary
	}

	return &Config{
		Model:         v.GetString("model"),
		FallbackModel: v.GetString("fallbackModel"),
		DefaultAgent:  v.GetString("defaults.agent"),
		MaxConcurrent: maxConcurrent,
		WorkerBinary:  workerBinary,
	}
}
