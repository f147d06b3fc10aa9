package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"timescrap/config"
	"timescrap/models"
)

type collectingWriter struct {
	mu      sync.Mutex
	records []*models.DayRecord
	failErr error
}

func (w *collectingWriter) Write(records []*models.DayRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failErr != nil {
		return w.failErr
	}
	w.records = append(w.records, records...)
	return nil
}

func (w *collectingWriter) Close() error    { return nil }
func (w *collectingWriter) Validate() error { return nil }

func (w *collectingWriter) dates() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.records))
	for _, record := range w.records {
		out = append(out, record.Date)
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Years = []int{2024}
	cfg.PipelineBufferSize = 16
	cfg.BatchSize = 1
	return cfg
}

func TestPipelineProcessesRecords(t *testing.T) {
	writer := &collectingWriter{}
	p := NewPipeline(context.Background(), writer, testConfig())
	p.Start(2)

	for _, date := range []string{"2024/1/1", "2024/1/2", "2024/1/3"} {
		record := &models.DayRecord{Date: date, Payload: json.RawMessage(`{"is_holiday":false,"events":[]}`)}
		if err := p.Process(record); err != nil {
			t.Fatalf("process %s: %v", date, err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := len(writer.dates()); got != 3 {
		t.Fatalf("wrote %d records, want 3", got)
	}

	metrics := p.GetMetrics()
	if processed := metrics["processed_records"].(int64); processed != 3 {
		t.Fatalf("processed = %d, want 3", processed)
	}
}

func TestPipelineDropsDuplicatesAndInvalid(t *testing.T) {
	writer := &collectingWriter{}
	p := NewPipeline(context.Background(), writer, testConfig())
	p.Start(1)

	valid := &models.DayRecord{Date: "2024/1/1", Payload: json.RawMessage(`{"is_holiday":true,"events":[]}`)}
	duplicate := &models.DayRecord{Date: "2024/1/1", Payload: json.RawMessage(`{"is_holiday":true,"events":[]}`)}
	invalid := &models.DayRecord{Date: "2024/1/2"}

	for _, record := range []*models.DayRecord{valid, duplicate, invalid} {
		if err := p.Process(record); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := len(writer.dates()); got != 1 {
		t.Fatalf("wrote %d records, want 1", got)
	}

	validation := p.GetMetrics()["validation_errors"].(map[string]int)
	if validation["duplicate_date"] != 1 {
		t.Fatalf("duplicate_date = %d, want 1", validation["duplicate_date"])
	}
	if validation["invalid_record"] != 1 {
		t.Fatalf("invalid_record = %d, want 1", validation["invalid_record"])
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	writer := &collectingWriter{}
	p := NewPipeline(context.Background(), writer, testConfig())
	p.Start(1)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	record := &models.DayRecord{Date: "2024/1/1", Payload: json.RawMessage(`{}`)}
	if err := p.Process(record); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineSurfacesWriterError(t *testing.T) {
	writer := &collectingWriter{failErr: errors.New("disk full")}
	p := NewPipeline(context.Background(), writer, testConfig())
	p.Start(1)

	record := &models.DayRecord{Date: "2024/1/1", Payload: json.RawMessage(`{"is_holiday":false,"events":[]}`)}
	// The enqueue may race with shutdown after the first write fails.
	_ = p.Process(record)

	if err := p.Close(); err == nil {
		t.Fatalf("close should surface the writer error")
	}
	if got := p.Err(); got == nil {
		t.Fatalf("pipeline error not latched")
	}
}
