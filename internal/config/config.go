// Package config loads the externally supplied pipeline configuration from a
// YAML file with ${VAR} environment expansion. The loaded struct is treated as
// immutable and passed to components at construction.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDatabasePath     = "data/trade_data.db"
	defaultBaseURL          = "https://comtradeapi.un.org/public/v1/preview"
	defaultAnonymousLimit   = 100
	defaultSubscribedLimit  = 10000
	defaultRequestDelaySecs = 2
	defaultTimeoutSecs      = 30
	defaultMinRealRecords   = 100
	defaultSampleRecords    = 500
	defaultRetentionDays    = 30
)

type Config struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DatabasePath string `yaml:"database_path"`

	RateLimit RateLimit `yaml:"rate_limit"`

	RequestDelaySeconds int `yaml:"request_delay_seconds"`
	TimeoutSeconds      int `yaml:"timeout_seconds"`

	// MinRealRecords is the yield threshold below which the extractor
	// backfills with synthetic rows.
	MinRealRecords int `yaml:"min_real_records"`
	SampleRecords  int `yaml:"sample_records"`
	RetentionDays  int `yaml:"retention_days"`

	Countries    []Country         `yaml:"countries"`
	Years        []int             `yaml:"years"`
	HSCategories map[string]string `yaml:"hs_categories"`
}

// RateLimit holds the two hourly request ceilings: the subscribed tier
// applies when an API key is configured, the anonymous tier otherwise.
type RateLimit struct {
	SubscribedPerHour int `yaml:"subscribed_per_hour"`
	AnonymousPerHour  int `yaml:"anonymous_per_hour"`
}

type Country struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Region string `yaml:"region"`
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.APIKey = os.Getenv("COMTRADE_API_KEY")
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaultDatabasePath
	}
	if c.RateLimit.SubscribedPerHour <= 0 {
		c.RateLimit.SubscribedPerHour = defaultSubscribedLimit
	}
	if c.RateLimit.AnonymousPerHour <= 0 {
		c.RateLimit.AnonymousPerHour = defaultAnonymousLimit
	}
	if c.RequestDelaySeconds <= 0 {
		c.RequestDelaySeconds = defaultRequestDelaySecs
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSecs
	}
	if c.MinRealRecords <= 0 {
		c.MinRealRecords = defaultMinRealRecords
	}
	if c.SampleRecords <= 0 {
		c.SampleRecords = defaultSampleRecords
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
	}
	if len(c.Countries) == 0 {
		c.Countries = defaultCountries()
	}
	if len(c.Years) == 0 {
		c.Years = []int{2020, 2021, 2022, 2023}
	}
	if len(c.HSCategories) == 0 {
		c.HSCategories = defaultHSCategories()
	}
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if c.RateLimit.AnonymousPerHour > c.RateLimit.SubscribedPerHour {
		return fmt.Errorf("anonymous ceiling %d exceeds subscribed ceiling %d",
			c.RateLimit.AnonymousPerHour, c.RateLimit.SubscribedPerHour)
	}
	for _, country := range c.Countries {
		if len(country.Code) != 3 {
			return fmt.Errorf("country code %q is not a 3-letter ISO code", country.Code)
		}
	}
	return nil
}

// HourlyCeiling picks the rate tier for the configured credentials.
func (c *Config) HourlyCeiling() int {
	if c.APIKey != "" {
		return c.RateLimit.SubscribedPerHour
	}
	return c.RateLimit.AnonymousPerHour
}

func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) CountryCodes() []string {
	codes := make([]string, 0, len(c.Countries))
	for _, country := range c.Countries {
		codes = append(codes, country.Code)
	}
	return codes
}

func defaultCountries() []Country {
	return []Country{
		{Code: "USA", Name: "United States of America", Region: "Americas"},
		{Code: "CHN", Name: "China", Region: "Asia"},
		{Code: "DEU", Name: "Germany", Region: "Europe"},
		{Code: "JPN", Name: "Japan", Region: "Asia"},
		{Code: "GBR", Name: "United Kingdom", Region: "Europe"},
		{Code: "FRA", Name: "France", Region: "Europe"},
		{Code: "IND", Name: "India", Region: "Asia"},
		{Code: "ITA", Name: "Italy", Region: "Europe"},
		{Code: "BRA", Name: "Brazil", Region: "Americas"},
		{Code: "CAN", Name: "Canada", Region: "Americas"},
		{Code: "RUS", Name: "Russian Federation", Region: "Europe"},
		{Code: "KOR", Name: "Republic of Korea", Region: "Asia"},
		{Code: "ESP", Name: "Spain", Region: "Europe"},
		{Code: "AUS", Name: "Australia", Region: "Oceania"},
		{Code: "MEX", Name: "Mexico", Region: "Americas"},
		{Code: "IDN", Name: "Indonesia", Region: "Asia"},
		{Code: "NLD", Name: "Netherlands", Region: "Europe"},
		{Code: "SAU", Name: "Saudi Arabia", Region: "Asia"},
		{Code: "TUR", Name: "Turkey", Region: "Asia"},
		{Code: "CHE", Name: "Switzerland", Region: "Europe"},
	}
}

func defaultHSCategories() map[string]string {
	return map[string]string{
		"01": "Live animals",
		"02": "Meat and edible meat offal",
		"03": "Fish and crustaceans",
		"04": "Dairy produce",
		"05": "Products of animal origin",
		"06": "Live trees and other plants",
		"07": "Edible vegetables",
		"08": "Edible fruit and nuts",
		"09": "Coffee, tea, mate and spices",
		"10": "Cereals",
		"27": "Mineral fuels, oils and waxes",
		"84": "Nuclear reactors, boilers, machinery",
		"85": "Electrical machinery and equipment",
		"87": "Vehicles other than railway",
	}
}
