package config

import "github.com/spf13/pflag"

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	In       string
	PGDSN    string
	JobIDs   []string
	Out      string
	Errors   string
	Until    string
	Resolve  bool
	Content  ContentConfig
	LogLevel string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, contentDefaults(map[string]interface{}{
		"in":        "./data/job_events.jsonl",
		"out":       "./data/job_history.jsonl",
		"errors":    "./data/decode_errors.jsonl",
		"log-level": "info",
	}))
	if err != nil {
		return ReplayConfig{}, err
	}

	return ReplayConfig{
		In:       v.GetString("in"),
		PGDSN:    v.GetString("pg-dsn"),
		JobIDs:   getStringSlice(v, "job"),
		Out:      v.GetString("out"),
		Errors:   v.GetString("errors"),
		Until:    v.GetString("until"),
		Resolve:  v.GetBool("resolve"),
		Content:  loadContent(v),
		LogLevel: v.GetString("log-level"),
	}, nil
}
