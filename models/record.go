package models

import (
	"encoding/json"
	"fmt"
)

// DayRecord pairs a date key with the raw API payload returned for that day.
//
// In the JSON save file each record is a single-key object, {"Y/M/D": payload},
// matching the format earlier tool versions wrote so old files stay resumable.
type DayRecord struct {
	Date    string
	Payload json.RawMessage
}

// MarshalJSON encodes the record as a single-key object keyed by the date.
func (r DayRecord) MarshalJSON() ([]byte, error) {
	if r.Date == "" {
		return nil, fmt.Errorf("record has no date key")
	}
	return json.Marshal(map[string]json.RawMessage{r.Date: r.Payload})
}

// UnmarshalJSON decodes a single-key object into the record.
func (r *DayRecord) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj) != 1 {
		return fmt.Errorf("record must be a single-key object, got %d keys", len(obj))
	}
	for date, payload := range obj {
		r.Date = date
		r.Payload = payload
	}
	return nil
}

// HolidayInfo is the decoded day payload from the API.
type HolidayInfo struct {
	IsHoliday bool    `json:"is_holiday"`
	Events    []Event `json:"events"`
}

// Event is a single calendar event attached to a day.
type Event struct {
	Description           string `json:"description"`
	AdditionalDescription string `json:"additional_description,omitempty"`
	IsHoliday             bool   `json:"is_holiday"`
	IsReligious           bool   `json:"is_religious"`
}
