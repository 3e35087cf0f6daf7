package config

import "github.com/spf13/pflag"

// WatchConfig holds configuration for the watch command.
type WatchConfig struct {
	RPCURL    string
	Contracts []string
	JobID     string
	In        string
	PGDSN     string
	Out       string
	Content   ContentConfig
	LogLevel  string
}

// LoadWatch merges config file, environment variables, and flags into WatchConfig.
func LoadWatch(cfgFile string, flags *pflag.FlagSet) (WatchConfig, error) {
	v, err := newViper(cfgFile, flags, contentDefaults(map[string]interface{}{
		"in":        "./data/job_events.jsonl",
		"log-level": "info",
	}))
	if err != nil {
		return WatchConfig{}, err
	}

	return WatchConfig{
		RPCURL:    v.GetString("rpc"),
		Contracts: getStringSlice(v, "contract"),
		JobID:     v.GetString("job"),
		In:        v.GetString("in"),
		PGDSN:     v.GetString("pg-dsn"),
		Out:       v.GetString("out"),
		Content:   loadContent(v),
		LogLevel:  v.GetString("log-level"),
	}, nil
}
