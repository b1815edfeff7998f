package config

import (
	"os"
	"time"

	"github.com/go-yaml/yaml"

	"github.com/prismsocial/prism-server/internal/domain"
)

type Config struct {
	Server    Server                `yaml:"server"`
	Feed      Feed                  `yaml:"feed"`
	Sync      Sync                  `yaml:"sync"`
	Libraries []domain.MediaLibrary `yaml:"libraries"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

// Feed holds the personalization tuning constants. The cold-start
// threshold and decay rate are deliberately configuration, not code.
type Feed struct {
	ColdStartThreshold  int     `yaml:"coldStartThreshold"`
	DecayFactor         float64 `yaml:"decayFactor"`
	DecayPeriodDays     int     `yaml:"decayPeriodDays"`
	FilterCacheTTLSecs  int     `yaml:"filterCacheTTLSeconds"`
	TrendingTTLSecs     int     `yaml:"trendingCacheTTLSeconds"`
	HistoryRetentionDay int     `yaml:"historyRetentionDays"`
}

func (f Feed) DecayPeriod() time.Duration      { return time.Duration(f.DecayPeriodDays) * 24 * time.Hour }
func (f Feed) FilterCacheTTL() time.Duration   { return time.Duration(f.FilterCacheTTLSecs) * time.Second }
func (f Feed) TrendingCacheTTL() time.Duration { return time.Duration(f.TrendingTTLSecs) * time.Second }
func (f Feed) HistoryRetention() time.Duration {
	return time.Duration(f.HistoryRetentionDay) * 24 * time.Hour
}

type Sync struct {
	IntervalSecs       int `yaml:"intervalSeconds"`
	EphemeralEverySecs int `yaml:"ephemeralEverySeconds"`
	HousekeepEveryMins int `yaml:"housekeepEveryMinutes"`
	RunCeilingSecs     int `yaml:"runCeilingSeconds"`
	ProviderTimeoutSec int `yaml:"providerTimeoutSeconds"`
}

func (s Sync) Interval() time.Duration       { return time.Duration(s.IntervalSecs) * time.Second }
func (s Sync) EphemeralEvery() time.Duration { return time.Duration(s.EphemeralEverySecs) * time.Second }
func (s Sync) HousekeepEvery() time.Duration { return time.Duration(s.HousekeepEveryMins) * time.Minute }
func (s Sync) RunCeiling() time.Duration     { return time.Duration(s.RunCeilingSecs) * time.Second }
func (s Sync) ProviderTimeout() time.Duration {
	return time.Duration(s.ProviderTimeoutSec) * time.Second
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	config.applyDefaults()

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	if c.Feed.ColdStartThreshold == 0 {
		c.Feed.ColdStartThreshold = 5
	}
	if c.Feed.DecayFactor == 0 {
		c.Feed.DecayFactor = 0.9
	}
	if c.Feed.DecayPeriodDays == 0 {
		c.Feed.DecayPeriodDays = 30
	}
	if c.Feed.FilterCacheTTLSecs == 0 {
		c.Feed.FilterCacheTTLSecs = 30
	}
	if c.Feed.TrendingTTLSecs == 0 {
		c.Feed.TrendingTTLSecs = 60
	}
	if c.Feed.HistoryRetentionDay == 0 {
		c.Feed.HistoryRetentionDay = 30
	}
	if c.Sync.IntervalSecs == 0 {
		c.Sync.IntervalSecs = 60
	}
	if c.Sync.EphemeralEverySecs == 0 {
		c.Sync.EphemeralEverySecs = 30
	}
	if c.Sync.HousekeepEveryMins == 0 {
		c.Sync.HousekeepEveryMins = 60
	}
	if c.Sync.RunCeilingSecs == 0 {
		c.Sync.RunCeilingSecs = 300
	}
	if c.Sync.ProviderTimeoutSec == 0 {
		c.Sync.ProviderTimeoutSec = 10
	}
	for i := range c.Libraries {
		if c.Libraries[i].PageSize == 0 {
			c.Libraries[i].PageSize = 200
		}
		if c.Libraries[i].ItemTTLMins == 0 && c.Libraries[i].Kind.IsEphemeral() {
			c.Libraries[i].ItemTTLMins = 24 * 60
		}
	}
}
