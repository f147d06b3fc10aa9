package parser

import (
	"encoding/json"
	"strings"
	"testing"

	"timescrap/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    PayloadKind
		wantErr bool
	}{
		{
			name: "day payload",
			body: `{"is_holiday": true, "events": [{"description": "Nowruz", "is_holiday": true}]}`,
			want: KindDay,
		},
		{
			name: "day payload without events",
			body: `{"is_holiday": false, "events": []}`,
			want: KindDay,
		},
		{
			name: "invalid date",
			body: `{"status": false, "message": "invalid input!"}`,
			want: KindInvalidDate,
		},
		{
			name:    "server error envelope",
			body:    `{"status": false, "message": "internal error"}`,
			want:    KindError,
			wantErr: true,
		},
		{
			name:    "malformed body",
			body:    `<html>gateway timeout</html>`,
			want:    KindError,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := Classify([]byte(tt.body))
			if kind != tt.want {
				t.Fatalf("kind = %v, want %v", kind, tt.want)
			}
			if tt.wantErr && err == nil {
				t.Fatalf("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseHoliday(t *testing.T) {
	body := []byte(`{"is_holiday": true, "events": [{"description": "Nowruz", "additional_description": "New Year", "is_holiday": true, "is_religious": false}]}`)

	info, err := ParseHoliday(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !info.IsHoliday {
		t.Fatalf("is_holiday should be true")
	}
	if len(info.Events) != 1 || info.Events[0].Description != "Nowruz" {
		t.Fatalf("events = %+v", info.Events)
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *models.DayRecord
		wantErr string
	}{
		{name: "nil", record: nil, wantErr: "nil"},
		{
			name:    "missing date",
			record:  &models.DayRecord{Payload: json.RawMessage(`{}`)},
			wantErr: "missing date",
		},
		{
			name:    "missing payload",
			record:  &models.DayRecord{Date: "2024/1/1"},
			wantErr: "missing payload",
		},
		{
			name:    "bad payload",
			record:  &models.DayRecord{Date: "2024/1/1", Payload: json.RawMessage(`{broken`)},
			wantErr: "not valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	valid := &models.DayRecord{Date: "2024/1/1", Payload: json.RawMessage(`{"is_holiday":false}`)}
	if err := ValidateRecord(valid); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
}
