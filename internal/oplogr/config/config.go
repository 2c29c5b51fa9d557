package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type LoggingCfg struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	RunLog      string `mapstructure:"run_log"`
}

type AliyunCfg struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	RegionID        string `mapstructure:"region_id"`
	Endpoint        string `mapstructure:"endpoint"`
	APIVersion      string `mapstructure:"api_version"`
	Action          string `mapstructure:"action"`
}

type HarvestCfg struct {
	Queries      []string      `mapstructure:"queries"` // Key=Value; viper lowercases map keys
	QueriesJSON  string        `mapstructure:"queries_json"`
	PageDelay    time.Duration `mapstructure:"page_delay"`
	BackoffDelay time.Duration `mapstructure:"backoff_delay"`
	StateFile    string        `mapstructure:"state_file"`

	// BaseFilters is Queries merged with QueriesJSON by Load.
	BaseFilters map[string]string `mapstructure:"-"`
}

type OutputCfg struct {
	Path string `mapstructure:"path"`
}

type Config struct {
	Version string     `mapstructure:"version"`
	Aliyun  AliyunCfg  `mapstructure:"aliyun"`
	Harvest HarvestCfg `mapstructure:"harvest"`
	Output  OutputCfg  `mapstructure:"output"`
	Logging LoggingCfg `mapstructure:"logging"`
}

var cfg *Config

// Load populates global config from a viper instance
func Load(v *viper.Viper) error {
	// set defaults
	v.SetDefault("version", "0.1")
	v.SetDefault("aliyun.region_id", "cn-hangzhou")
	v.SetDefault("aliyun.endpoint", "mongodb.aliyuncs.com")
	v.SetDefault("aliyun.api_version", "2015-12-01")
	v.SetDefault("aliyun.action", "DescribeAuditRecords")
	v.SetDefault("harvest.page_delay", "5s")
	v.SetDefault("harvest.backoff_delay", "60s")
	v.SetDefault("output.path", "./tmp/oplogs.op")
	v.SetDefault("logging.level", "info")

	// credentials and base filters usually come from the environment
	_ = v.BindEnv("aliyun.access_key_id", "ALIBABA_CLOUD_ACCESS_KEY_ID")
	_ = v.BindEnv("aliyun.access_key_secret", "ALIBABA_CLOUD_ACCESS_KEY_SECRET")
	_ = v.BindEnv("harvest.queries_json", "QUERIES")

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	queries, err := mergeQueries(c.Harvest.Queries, c.Harvest.QueriesJSON)
	if err != nil {
		return err
	}
	c.Harvest.BaseFilters = queries
	cfg = &c
	return nil
}

// mergeQueries builds the base RPC filters from Key=Value pairs and overlays
// the JSON object in raw. Non-string JSON values are rendered as JSON text.
func mergeQueries(pairs []string, raw string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid harvest query %q: want Key=Value", p)
		}
		out[k] = v
	}
	if raw == "" {
		return out, nil
	}
	var extra map[string]any
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return nil, fmt.Errorf("decode harvest queries json: %w", err)
	}
	for k, v := range extra {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
			delete(out, k)
		default:
			b, err := json.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("encode query %s: %w", k, err)
			}
			out[k] = string(b)
		}
	}
	return out, nil
}

func Get() *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	return cfg
}
