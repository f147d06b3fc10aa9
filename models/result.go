package models

import "time"

// ScrapeResult holds the overall outcome of a scraping run.
type ScrapeResult struct {
	RunID        string
	StartTime    time.Time
	EndTime      time.Time
	PlannedCount int
	ScrapedCount int
	ResumedCount int
	InvalidCount int
	RequestCount int
	RetryCount   int
	ErrorCount   int
	FailedDates  []string
	ErrorsByType map[string]int
}
