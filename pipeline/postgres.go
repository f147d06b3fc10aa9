package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"timescrap/models"
	"timescrap/parser"
)

const createHolidaysTable = `
CREATE TABLE IF NOT EXISTS holidays (
	calendar   TEXT        NOT NULL,
	date_key   TEXT        NOT NULL,
	is_holiday BOOLEAN     NOT NULL,
	payload    JSONB       NOT NULL,
	run_id     TEXT        NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (calendar, date_key)
);`

const upsertHoliday = `
INSERT INTO holidays (calendar, date_key, is_holiday, payload, run_id, scraped_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (calendar, date_key) DO UPDATE SET
	is_holiday = EXCLUDED.is_holiday,
	payload    = EXCLUDED.payload,
	run_id     = EXCLUDED.run_id,
	scraped_at = EXCLUDED.scraped_at;`

// PostgresWriter upserts records into a holidays table, one row per date.
type PostgresWriter struct {
	ctx      context.Context
	pool     *pgxpool.Pool
	calendar models.Calendar
	runID    string

	mu      sync.Mutex
	written int64
}

// NewPostgresWriter connects to Postgres and ensures the holidays table exists.
func NewPostgresWriter(ctx context.Context, dsn string, calendar models.Calendar, runID string) (*PostgresWriter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createHolidaysTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure holidays table: %w", err)
	}
	return &PostgresWriter{
		ctx:      ctx,
		pool:     pool,
		calendar: calendar,
		runID:    runID,
	}, nil
}

// Write upserts each record.
func (pw *PostgresWriter) Write(records []*models.DayRecord) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	for _, record := range records {
		info, err := parser.ParseHoliday(record.Payload)
		if err != nil {
			return fmt.Errorf("parse record %s: %w", record.Date, err)
		}
		_, err = pw.pool.Exec(pw.ctx, upsertHoliday,
			string(pw.calendar),
			record.Date,
			info.IsHoliday,
			[]byte(record.Payload),
			pw.runID,
		)
		if err != nil {
			return fmt.Errorf("upsert record %s: %w", record.Date, err)
		}
		pw.written++
	}
	return nil
}

// Close releases the connection pool.
func (pw *PostgresWriter) Close() error {
	pw.pool.Close()
	return nil
}

// Validate checks that the run produced rows.
func (pw *PostgresWriter) Validate() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	var count int64
	err := pw.pool.QueryRow(pw.ctx,
		"SELECT count(*) FROM holidays WHERE run_id = $1", pw.runID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("count run rows: %w", err)
	}
	if count < pw.written {
		return fmt.Errorf("holidays table holds %d rows for this run, expected %d", count, pw.written)
	}
	return nil
}
