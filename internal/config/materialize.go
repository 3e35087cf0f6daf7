package config

import "github.com/spf13/pflag"

// MaterializeConfig holds configuration for the materialize command.
type MaterializeConfig struct {
	In            string
	Out           string
	PGDSN         string
	BatchSize     int
	Concurrency   int
	StateFile     string
	RecomputeFrom uint64
	LogLevel      string
}

// LoadMaterialize merges config file, environment variables, and flags into MaterializeConfig.
func LoadMaterialize(cfgFile string, flags *pflag.FlagSet) (MaterializeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":  500,
		"concurrency": 4,
		"log-level":   "info",
	})
	if err != nil {
		return MaterializeConfig{}, err
	}

	return MaterializeConfig{
		In:            v.GetString("in"),
		Out:           v.GetString("out"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		Concurrency:   v.GetInt("concurrency"),
		StateFile:     v.GetString("state-file"),
		RecomputeFrom: v.GetUint64("recompute-from"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}
