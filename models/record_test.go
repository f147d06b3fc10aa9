package models

import (
	"encoding/json"
	"testing"
)

func TestDayRecordMarshalShape(t *testing.T) {
	record := DayRecord{
		Date:    "2024/3/21",
		Payload: json.RawMessage(`{"is_holiday":true,"events":[]}`),
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("unmarshal own output: %v", err)
	}
	if len(obj) != 1 {
		t.Fatalf("record should be a single-key object, got %d keys", len(obj))
	}
	payload, ok := obj["2024/3/21"]
	if !ok {
		t.Fatalf("record keyed by %v, want date key", obj)
	}

	var info HolidayInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !info.IsHoliday {
		t.Fatalf("payload lost is_holiday")
	}
}

func TestDayRecordUnmarshalSaveFile(t *testing.T) {
	// Array shape written by earlier tool versions.
	data := []byte(`[
        {"2020/1/1": {"is_holiday": true, "events": [{"description": "New Year", "is_holiday": true}]}},
        {"2020/1/2": {"is_holiday": false, "events": []}}
    ]`)

	var records []DayRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Date != "2020/1/1" {
		t.Fatalf("first record date = %q, want 2020/1/1", records[0].Date)
	}
	if records[1].Date != "2020/1/2" {
		t.Fatalf("second record date = %q, want 2020/1/2", records[1].Date)
	}
}

func TestDayRecordUnmarshalRejectsMultiKey(t *testing.T) {
	var record DayRecord
	err := json.Unmarshal([]byte(`{"2020/1/1": {}, "2020/1/2": {}}`), &record)
	if err == nil {
		t.Fatalf("multi-key object should not decode")
	}
}

func TestDayRecordMarshalRequiresDate(t *testing.T) {
	if _, err := json.Marshal(DayRecord{Payload: json.RawMessage(`{}`)}); err == nil {
		t.Fatalf("record without a date key should not encode")
	}
}
