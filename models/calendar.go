// Package models defines the calendar types and record shapes shared by the scraper.
package models

import (
	"fmt"
	"sort"
)

// Calendar identifies the calendar system a date is expressed in.
type Calendar string

const (
	Gregorian Calendar = "gregorian"
	Jalali    Calendar = "jalali"
)

// Valid reports whether the calendar is one the API understands.
func (c Calendar) Valid() bool {
	return c == Gregorian || c == Jalali
}

// CalendarDate is a single day in a given calendar system.
type CalendarDate struct {
	Calendar Calendar
	Year     int
	Month    int
	Day      int
}

// String returns the date key used in save files and checkpoints, e.g. "2024/1/5".
func (d CalendarDate) String() string {
	return fmt.Sprintf("%d/%d/%d", d.Year, d.Month, d.Day)
}

// Path returns the API request path for the date.
func (d CalendarDate) Path() string {
	return fmt.Sprintf("/%s/%d/%d/%d", d.Calendar, d.Year, d.Month, d.Day)
}

// CalendarRange selects the days to scrape. Years must be explicit; an empty
// Months selector means every month of the year and an empty Days selector
// means every day of the month.
type CalendarRange struct {
	Calendar Calendar
	Years    []int
	Months   []int
	Days     []int
}

// Normalize validates the selectors and rewrites them as sorted, de-duplicated
// lists with the whole-year and whole-month defaults expanded.
func (r *CalendarRange) Normalize() error {
	if !r.Calendar.Valid() {
		return fmt.Errorf("unknown calendar %q", r.Calendar)
	}

	if len(r.Years) == 0 {
		return fmt.Errorf("years list is empty: no year selected to scrape")
	}
	years := dedupeSorted(r.Years)
	if years[0] < 1 {
		return fmt.Errorf("year %d is not valid", years[0])
	}
	r.Years = years

	if len(r.Months) == 0 {
		r.Months = sequence(1, 12)
	} else {
		months := dedupeSorted(r.Months)
		if months[0] < 1 || months[len(months)-1] > 12 {
			return fmt.Errorf("month values must be between 1 and 12")
		}
		r.Months = months
	}

	if len(r.Days) == 0 {
		r.Days = sequence(1, 31)
	} else {
		days := dedupeSorted(r.Days)
		if days[0] < 1 || days[len(days)-1] > 31 {
			return fmt.Errorf("day values must be between 1 and 31")
		}
		r.Days = days
	}

	return nil
}

// Count returns the number of dates the normalized range expands to.
func (r *CalendarRange) Count() int {
	return len(r.Years) * len(r.Months) * len(r.Days)
}

// Dates expands the normalized range in scrape order: years ascending, then
// months, then days.
func (r *CalendarRange) Dates() []CalendarDate {
	out := make([]CalendarDate, 0, r.Count())
	for _, year := range r.Years {
		for _, month := range r.Months {
			for _, day := range r.Days {
				out = append(out, CalendarDate{
					Calendar: r.Calendar,
					Year:     year,
					Month:    month,
					Day:      day,
				})
			}
		}
	}
	return out
}

func dedupeSorted(values []int) []int {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	out := make([]int, 0, len(sorted))
	for _, v := range sorted {
		if len(out) > 0 && v == out[len(out)-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}

func sequence(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for v := from; v <= to; v++ {
		out = append(out, v)
	}
	return out
}
