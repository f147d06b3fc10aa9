package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	"timescrap/models"
)

// LoadFile overlays settings from an INI file onto cfg. Keys that are absent
// leave the existing value untouched.
func LoadFile(path string, cfg *Config) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("load config file %q: %w", path, err)
	}

	scraper := file.Section("scraper")
	applyString(scraper, "base_url", &cfg.BaseURL)
	applyString(scraper, "user_agent", &cfg.UserAgent)
	applyDuration(scraper, "sleep_min", &cfg.SleepMin)
	applyDuration(scraper, "sleep_max", &cfg.SleepMax)
	applyDuration(scraper, "timeout", &cfg.Timeout)
	applyInt(scraper, "parallelism", &cfg.Parallelism)
	applyInt(scraper, "max_retries", &cfg.MaxRetries)
	applyDuration(scraper, "retry_backoff", &cfg.RetryBackoff)
	applyDuration(scraper, "retry_backoff_max", &cfg.RetryBackoffMax)
	applyInt(scraper, "retry_warn_limit", &cfg.RetryWarnLimit)
	applyInt(scraper, "halt_limit", &cfg.HaltLimit)
	applyInt(scraper, "cache_size", &cfg.CacheSize)

	rng := file.Section("range")
	if key, err := requireKey(rng, "calendar"); err == nil {
		cfg.Calendar = models.Calendar(key.String())
	}
	if err := applyIntList(rng, "years", &cfg.Years); err != nil {
		return err
	}
	if err := applyIntList(rng, "months", &cfg.Months); err != nil {
		return err
	}
	if err := applyIntList(rng, "days", &cfg.Days); err != nil {
		return err
	}

	output := file.Section("output")
	applyString(output, "file", &cfg.OutputFile)
	applyString(output, "format", &cfg.OutputFormat)
	if key, err := requireKey(output, "resume"); err == nil {
		value, err := key.Bool()
		if err != nil {
			return fmt.Errorf("output.resume must be a boolean: %w", err)
		}
		cfg.Resume = value
	}
	applyString(output, "metrics_addr", &cfg.MetricsAddr)

	redis := file.Section("redis")
	applyString(redis, "addr", &cfg.RedisAddr)
	applyString(redis, "password", &cfg.RedisPassword)
	applyInt(redis, "db", &cfg.RedisDB)
	applyDuration(redis, "ttl", &cfg.RedisTTL)

	postgres := file.Section("postgres")
	applyString(postgres, "dsn", &cfg.PostgresDSN)

	return nil
}

func requireKey(section *ini.Section, name string) (*ini.Key, error) {
	if !section.HasKey(name) {
		return nil, fmt.Errorf("missing key %s", name)
	}
	return section.Key(name), nil
}

func applyString(section *ini.Section, name string, dst *string) {
	if section.HasKey(name) {
		*dst = section.Key(name).String()
	}
}

func applyInt(section *ini.Section, name string, dst *int) {
	if !section.HasKey(name) {
		return
	}
	if value, err := section.Key(name).Int(); err == nil {
		*dst = value
	}
}

func applyDuration(section *ini.Section, name string, dst *time.Duration) {
	if !section.HasKey(name) {
		return
	}
	if value, err := time.ParseDuration(section.Key(name).String()); err == nil {
		*dst = value
	}
}

func applyIntList(section *ini.Section, name string, dst *[]int) error {
	if !section.HasKey(name) {
		return nil
	}
	values, err := ParseIntList(section.Key(name).String())
	if err != nil {
		return fmt.Errorf("range.%s: %w", name, err)
	}
	*dst = values
	return nil
}
