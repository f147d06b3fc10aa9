package models

import (
	"strings"
	"testing"
)

func TestCalendarRangeNormalize(t *testing.T) {
	tests := []struct {
		name    string
		rng     CalendarRange
		wantErr string
	}{
		{
			name:    "unknown calendar",
			rng:     CalendarRange{Calendar: "lunar", Years: []int{2024}},
			wantErr: "unknown calendar",
		},
		{
			name:    "empty years",
			rng:     CalendarRange{Calendar: Gregorian},
			wantErr: "years list is empty",
		},
		{
			name:    "year below one",
			rng:     CalendarRange{Calendar: Gregorian, Years: []int{0}},
			wantErr: "not valid",
		},
		{
			name:    "month out of bounds",
			rng:     CalendarRange{Calendar: Gregorian, Years: []int{2024}, Months: []int{13}},
			wantErr: "between 1 and 12",
		},
		{
			name:    "day out of bounds",
			rng:     CalendarRange{Calendar: Jalali, Years: []int{1403}, Days: []int{32}},
			wantErr: "between 1 and 31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rng.Normalize()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCalendarRangeNormalizeDefaults(t *testing.T) {
	rng := CalendarRange{Calendar: Gregorian, Years: []int{2024}}
	if err := rng.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(rng.Months) != 12 {
		t.Fatalf("whole year should expand to 12 months, got %d", len(rng.Months))
	}
	if len(rng.Days) != 31 {
		t.Fatalf("whole month should expand to 31 days, got %d", len(rng.Days))
	}
	if got := rng.Count(); got != 12*31 {
		t.Fatalf("count = %d, want %d", got, 12*31)
	}
}

func TestCalendarRangeNormalizeDedupesAndSorts(t *testing.T) {
	rng := CalendarRange{
		Calendar: Gregorian,
		Years:    []int{2022, 2020, 2022, 2021},
		Months:   []int{3, 1, 3},
		Days:     []int{15, 1, 15},
	}
	if err := rng.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}

	wantYears := []int{2020, 2021, 2022}
	if len(rng.Years) != len(wantYears) {
		t.Fatalf("years = %v, want %v", rng.Years, wantYears)
	}
	for i, y := range wantYears {
		if rng.Years[i] != y {
			t.Fatalf("years = %v, want %v", rng.Years, wantYears)
		}
	}
	if len(rng.Months) != 2 || rng.Months[0] != 1 || rng.Months[1] != 3 {
		t.Fatalf("months = %v, want [1 3]", rng.Months)
	}
	if len(rng.Days) != 2 || rng.Days[0] != 1 || rng.Days[1] != 15 {
		t.Fatalf("days = %v, want [1 15]", rng.Days)
	}
}

func TestCalendarRangeDatesOrder(t *testing.T) {
	rng := CalendarRange{
		Calendar: Gregorian,
		Years:    []int{2025, 2024},
		Months:   []int{2, 1},
		Days:     []int{1},
	}
	if err := rng.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}

	dates := rng.Dates()
	want := []string{"2024/1/1", "2024/2/1", "2025/1/1", "2025/2/1"}
	if len(dates) != len(want) {
		t.Fatalf("got %d dates, want %d", len(dates), len(want))
	}
	for i, key := range want {
		if dates[i].String() != key {
			t.Fatalf("dates[%d] = %s, want %s", i, dates[i], key)
		}
	}
}

func TestCalendarDatePath(t *testing.T) {
	date := CalendarDate{Calendar: Jalali, Year: 1403, Month: 7, Day: 9}
	if got, want := date.Path(), "/jalali/1403/7/9"; got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
	if got, want := date.String(), "1403/7/9"; got != want {
		t.Fatalf("string = %q, want %q", got, want)
	}
}
