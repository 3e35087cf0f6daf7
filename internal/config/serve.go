package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen         string
	In             string
	PGDSN          string
	RequestTimeout time.Duration
	Content        ContentConfig
	LogLevel       string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, contentDefaults(map[string]interface{}{
		"listen":          ":8080",
		"in":              "./data/job_events.jsonl",
		"request-timeout": 30 * time.Second,
		"log-level":       "info",
	}))
	if err != nil {
		return ServeConfig{}, err
	}

	return ServeConfig{
		Listen:         v.GetString("listen"),
		In:             v.GetString("in"),
		PGDSN:          v.GetString("pg-dsn"),
		RequestTimeout: v.GetDuration("request-timeout"),
		Content:        loadContent(v),
		LogLevel:       v.GetString("log-level"),
	}, nil
}
