package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"timescrap/models"
	"timescrap/parser"
)

// JSONWriter maintains the save file as a single indented JSON array of
// {"Y/M/D": payload} objects. The whole array is rewritten on every flush so
// an interrupted run always leaves a well-formed, resumable file behind.
type JSONWriter struct {
	file    *os.File
	records []models.DayRecord
	mu      sync.Mutex
}

// NewJSONWriter opens the save file, seeding it with records loaded from a
// previous run when resuming.
func NewJSONWriter(filename string, prior []models.DayRecord) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	w := &JSONWriter{
		file:    f,
		records: append([]models.DayRecord(nil), prior...),
	}
	if err := w.rewrite(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends records and rewrites the array.
func (jw *JSONWriter) Write(records []*models.DayRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		if record == nil {
			continue
		}
		jw.records = append(jw.records, *record)
	}
	return jw.rewrite()
}

func (jw *JSONWriter) rewrite() error {
	data, err := json.MarshalIndent(jw.records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode json records: %w", err)
	}

	if _, err := jw.file.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind json file: %w", err)
	}
	if err := jw.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate json file: %w", err)
	}
	if _, err := jw.file.Write(data); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

// Count returns the number of records currently persisted.
func (jw *JSONWriter) Count() int {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return len(jw.records)
}

// Close syncs and closes the file handle.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.file.Sync(); err != nil {
		return fmt.Errorf("sync json file: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the file holds a parsable record array.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	data, err := os.ReadFile(jw.file.Name())
	if err != nil {
		return fmt.Errorf("read json file: %w", err)
	}
	var records []models.DayRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("json file is not a record array: %w", err)
	}
	if len(records) != len(jw.records) {
		return fmt.Errorf("json file holds %d records, expected %d", len(records), len(jw.records))
	}
	return nil
}

// JSONLWriter writes newline-delimited records.
type JSONLWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONLWriter initialises the JSONL writer. When resuming, records from
// earlier runs are kept and new ones appended.
func NewJSONLWriter(filename string, resume bool) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, openFlags(resume), 0o644)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONLWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends one record per line.
func (jw *JSONLWriter) Write(records []*models.DayRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		if err := jw.encoder.Encode(record); err != nil {
			return fmt.Errorf("encode jsonl record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSONL file has data.
func (jw *JSONLWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat jsonl file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("jsonl file is empty")
	}
	return nil
}

// CSVWriter flattens records to CSV rows.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer. The header row is written only when
// the file is fresh; rows appended while resuming follow the existing header.
func NewCSVWriter(filename string, resume bool) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, openFlags(resume), 0o644)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)

	needHeader := true
	if resume {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat csv file: %w", err)
		}
		needHeader = info.Size() == 0
	}

	if needHeader {
		header := []string{"date", "is_holiday", "event_count", "events"}
		if err := writer.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []*models.DayRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, record := range records {
		info, err := parser.ParseHoliday(record.Payload)
		if err != nil {
			return fmt.Errorf("flatten record %s: %w", record.Date, err)
		}

		descriptions := make([]string, 0, len(info.Events))
		for _, event := range info.Events {
			descriptions = append(descriptions, event.Description)
		}

		row := []string{
			record.Date,
			strconv.FormatBool(info.IsHoliday),
			strconv.Itoa(len(info.Events)),
			strings.Join(descriptions, "; "),
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// openFlags picks between appending to an existing output and starting over.
func openFlags(resume bool) int {
	if resume {
		return os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	return os.O_CREATE | os.O_WRONLY | os.O_TRUNC
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
