// Package parser interprets response bodies from the holiday API.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"timescrap/models"
)

// PayloadKind classifies an API response body.
type PayloadKind int

const (
	// KindDay is a real day payload, safe to persist.
	KindDay PayloadKind = iota
	// KindInvalidDate means the API rejected the date itself, e.g. day 31 of
	// a 30-day month. Such dates are skipped, never retried.
	KindInvalidDate
	// KindError is a transient error envelope; the request should be retried.
	KindError
)

// Classify inspects a response body. The API signals failure by including a
// "status" field in the object; day payloads never carry one.
func Classify(body []byte) (PayloadKind, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return KindError, fmt.Errorf("decode payload: %w", err)
	}

	if _, ok := obj["status"]; !ok {
		return KindDay, nil
	}

	message := ""
	if raw, ok := obj["message"]; ok {
		var decoded string
		if err := json.Unmarshal(raw, &decoded); err == nil {
			message = decoded
		}
	}
	if strings.Contains(message, "invalid input!") {
		return KindInvalidDate, nil
	}
	return KindError, fmt.Errorf("api error: %s", message)
}

// ParseHoliday decodes a day payload into its structured form.
func ParseHoliday(body []byte) (*models.HolidayInfo, error) {
	var info models.HolidayInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode holiday payload: %w", err)
	}
	return &info, nil
}

// ValidateRecord ensures the scraper captured the fields a record needs
// before it is handed to a writer.
func ValidateRecord(r *models.DayRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Date) == "" {
		return fmt.Errorf("record missing date key")
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("record missing payload for %s", r.Date)
	}
	if !json.Valid(r.Payload) {
		return fmt.Errorf("record payload for %s is not valid JSON", r.Date)
	}
	return nil
}
