// Package config holds run configuration for the scraper.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"timescrap/models"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL  string
	Calendar models.Calendar
	Years    []int
	Months   []int // empty selects the whole year
	Days     []int // empty selects the whole month

	SleepMin    time.Duration
	SleepMax    time.Duration
	Parallelism int
	Timeout     time.Duration

	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	RetryWarnLimit  int
	HaltLimit       int // 0 retries bad payloads forever

	OutputFile   string
	OutputFormat string // json, jsonl, csv, dual, or postgres
	Resume       bool

	UserAgent   string
	MetricsAddr string
	Verbose     bool

	PipelineBufferSize int
	BatchSize          int
	CacheSize          int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	PostgresDSN string
}

// DefaultConfig returns conservative defaults matching the API's tolerance
// for polite clients.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://holidayapi.ir",
		Calendar:           models.Gregorian,
		SleepMin:           5 * time.Second,
		SleepMax:           10 * time.Second,
		Parallelism:        1,
		Timeout:            10 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       200 * time.Millisecond,
		RetryBackoffMax:    2 * time.Second,
		RetryWarnLimit:     20,
		HaltLimit:          50,
		OutputFormat:       "json",
		Resume:             true,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		PipelineBufferSize: 512,
		BatchSize:          16,
		CacheSize:          4096,
		RedisTTL:           0,
	}
}

// Range builds the calendar range from the selector fields.
func (c *Config) Range() *models.CalendarRange {
	return &models.CalendarRange{
		Calendar: c.Calendar,
		Years:    c.Years,
		Months:   c.Months,
		Days:     c.Days,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if err := c.Range().Normalize(); err != nil {
		return fmt.Errorf("invalid calendar range: %w", err)
	}

	if c.SleepMin < 0 {
		return fmt.Errorf("sleep minimum cannot be negative")
	}
	if c.SleepMax < c.SleepMin {
		return fmt.Errorf("sleep maximum (%s) cannot be below sleep minimum (%s)", c.SleepMax, c.SleepMin)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RetryWarnLimit < 0 {
		return fmt.Errorf("retry warn limit cannot be negative")
	}
	if c.HaltLimit < 0 {
		return fmt.Errorf("halt limit cannot be negative")
	}
	if c.HaltLimit > 0 && c.RetryWarnLimit > c.HaltLimit {
		return fmt.Errorf("retry warn limit (%d) cannot exceed halt limit (%d)", c.RetryWarnLimit, c.HaltLimit)
	}

	switch c.OutputFormat {
	case "json", "dual":
	case "jsonl", "csv":
		if c.Resume && c.RedisAddr == "" {
			return fmt.Errorf("resume with %s output requires a redis checkpoint", c.OutputFormat)
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres output requires a DSN")
		}
		if c.Resume && c.RedisAddr == "" {
			return fmt.Errorf("resume with postgres output requires a redis checkpoint")
		}
	default:
		return fmt.Errorf("output format must be json, jsonl, csv, dual, or postgres")
	}

	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// DefaultOutputFile derives a save path from the normalized range, e.g.
// scraping_results/time_ir_2020_to_2024_gregorian_2026_08_29_12_00_00.json.
func (c *Config) DefaultOutputFile(now time.Time) string {
	rng := c.Range()
	if err := rng.Normalize(); err != nil {
		return fmt.Sprintf("scraping_results/time_ir_%s_%s.json", c.Calendar, now.Format("2006_01_02_15_04_05"))
	}
	years := rng.Years
	first, last := years[0], years[len(years)-1]
	stamp := now.Format("2006_01_02_15_04_05")
	return fmt.Sprintf("scraping_results/time_ir_%d_to_%d_%s_%s.json", first, last, c.Calendar, stamp)
}

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, true, nil
}

// ParseIntList parses a comma-separated selector such as "1,2,3". The values
// "all" and "" select everything (an empty list).
func ParseIntList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid list entry %q: %w", part, err)
		}
		out = append(out, value)
	}
	return out, nil
}
