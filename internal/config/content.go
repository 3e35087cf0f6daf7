package config

import (
	"time"

	"github.com/spf13/viper"
)

// ContentConfig selects and tunes the content store used for message resolution.
type ContentConfig struct {
	SessionKeys string
	GatewayURL  string
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3Profile   string
	S3PathStyle bool
	RedisAddr   string
	RedisTTL    time.Duration
	RPS         float64
	MaxRetries  int
	Timeout     time.Duration
	Concurrency int
}

// Enabled reports whether any content backend is configured.
func (c ContentConfig) Enabled() bool {
	return c.GatewayURL != "" || c.S3Bucket != ""
}

func contentDefaults(defaults map[string]interface{}) map[string]interface{} {
	defaults["redis-ttl"] = time.Hour
	defaults["content-rps"] = 10.0
	defaults["content-retries"] = 3
	defaults["content-timeout"] = 30 * time.Second
	defaults["resolve-concurrency"] = 8
	return defaults
}

func loadContent(v *viper.Viper) ContentConfig {
	return ContentConfig{
		SessionKeys: v.GetString("session-keys"),
		GatewayURL:  v.GetString("gateway-url"),
		S3Bucket:    v.GetString("s3-bucket"),
		S3Prefix:    v.GetString("s3-prefix"),
		S3Region:    v.GetString("s3-region"),
		S3Endpoint:  v.GetString("s3-endpoint"),
		S3Profile:   v.GetString("s3-profile"),
		S3PathStyle: v.GetBool("s3-path-style"),
		RedisAddr:   v.GetString("redis-addr"),
		RedisTTL:    v.GetDuration("redis-ttl"),
		RPS:         v.GetFloat64("content-rps"),
		MaxRetries:  v.GetInt("content-retries"),
		Timeout:     v.GetDuration("content-timeout"),
		Concurrency: v.GetInt("resolve-concurrency"),
	}
}
