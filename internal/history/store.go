// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history provides SQLite-backed persistence of tool-call records,
// so operators can audit what the hub dispatched, to which backend, and how
// it fared.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/switchboard/pkg/observability"
)

// Record is one dispatched tool call's audit entry.
type Record struct {
	ID            int64                  `json:"id"`
	ServerName    string                 `json:"serverName"`
	ToolName      string                 `json:"toolName"`
	Args          map[string]interface{} `json:"args,omitempty"`
	OperationType string                 `json:"operationType,omitempty"`
	Attempts      int                    `json:"attempts"`
	Success       bool                   `json:"success"`
	Error         string                 `json:"error,omitempty"`
	RolledBack    bool                   `json:"rolledBack"`
	DurationMs    int64                  `json:"durationMs"`
	StartedAt     time.Time              `json:"startedAt"`
}

// Config contains history storage configuration.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Special value ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int
}

// Store is a SQLite-backed call-record log.
type Store struct {
	db *sql.DB
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS tool_calls (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	server_name    TEXT NOT NULL,
	tool_name      TEXT NOT NULL,
	args           TEXT,
	operation_type TEXT,
	attempts       INTEGER NOT NULL DEFAULT 1,
	success        INTEGER NOT NULL,
	error          TEXT,
	rolled_back    INTEGER NOT NULL DEFAULT 0,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	started_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_server ON tool_calls(server_name, started_at);
CREATE TABLE IF NOT EXISTS spans (
	span_id        TEXT PRIMARY KEY,
	trace_id       TEXT NOT NULL,
	parent_id      TEXT,
	name           TEXT NOT NULL,
	kind           TEXT NOT NULL,
	start_time     INTEGER NOT NULL,
	end_time       INTEGER NOT NULL,
	duration_ms    INTEGER NOT NULL,
	status_code    INTEGER NOT NULL,
	status_message TEXT,
	attributes     TEXT,
	events         TEXT
);
CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans(trace_id, start_time);
`

// New creates a SQLite history store at the given path.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("history: database path is required")
	}

	// WAL mode for concurrent readers alongside the single writer.
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Append writes one call record. Args are stored as JSON; callers should
// redact sensitive fields before appending.
func (s *Store) Append(ctx context.Context, rec Record) error {
	var argsJSON []byte
	if rec.Args != nil {
		var err error
		argsJSON, err = json.Marshal(rec.Args)
		if err != nil {
			return fmt.Errorf("history: encode args: %w", err)
		}
	}

	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls
			(server_name, tool_name, args, operation_type, attempts, success, error, rolled_back, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ServerName, rec.ToolName, string(argsJSON), rec.OperationType,
		rec.Attempts, boolToInt(rec.Success), rec.Error, boolToInt(rec.RolledBack),
		rec.DurationMs, startedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("history: insert record: %w", err)
	}
	return nil
}

// Query lists records, newest first. An empty serverName matches all
// servers; limit caps the result (default 100).
func (s *Store) Query(ctx context.Context, serverName string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, server_name, tool_name, args, operation_type, attempts, success, error, rolled_back, duration_ms, started_at
		FROM tool_calls`
	args := []interface{}{}
	if serverName != "" {
		query += ` WHERE server_name = ?`
		args = append(args, serverName)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var argsJSON sql.NullString
		var success, rolledBack int
		var startedAt int64

		if err := rows.Scan(&rec.ID, &rec.ServerName, &rec.ToolName, &argsJSON,
			&rec.OperationType, &rec.Attempts, &success, &rec.Error,
			&rolledBack, &rec.DurationMs, &startedAt); err != nil {
			return nil, fmt.Errorf("history: scan record: %w", err)
		}

		rec.Success = success != 0
		rec.RolledBack = rolledBack != 0
		rec.StartedAt = time.UnixMilli(startedAt)
		if argsJSON.Valid && argsJSON.String != "" {
			_ = json.Unmarshal([]byte(argsJSON.String), &rec.Args)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AppendSpan persists one completed span; it satisfies the tracing
// package's SpanSink. Active spans (no end time) are rejected.
func (s *Store) AppendSpan(ctx context.Context, span observability.Span) error {
	if span.IsActive() {
		return fmt.Errorf("history: refusing to persist active span %q", span.Name)
	}

	var attrsJSON, eventsJSON []byte
	var err error
	if len(span.Attributes) > 0 {
		if attrsJSON, err = json.Marshal(span.Attributes); err != nil {
			return fmt.Errorf("history: encode span attributes: %w", err)
		}
	}
	if len(span.Events) > 0 {
		if eventsJSON, err = json.Marshal(span.Events); err != nil {
			return fmt.Errorf("history: encode span events: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO spans
			(span_id, trace_id, parent_id, name, kind, start_time, end_time, duration_ms, status_code, status_message, attributes, events)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		span.SpanID, span.TraceID, span.ParentID, span.Name, string(span.Kind),
		span.StartTime.UnixNano(), span.EndTime.UnixNano(),
		span.Duration().Milliseconds(),
		int(span.Status.Code), span.Status.Message,
		string(attrsJSON), string(eventsJSON),
	)
	if err != nil {
		return fmt.Errorf("history: insert span: %w", err)
	}
	return nil
}

// QuerySpans lists persisted spans, newest first. An empty name matches
// all spans; limit caps the result (default 100).
func (s *Store) QuerySpans(ctx context.Context, name string, limit int) ([]observability.Span, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT span_id, trace_id, parent_id, name, kind, start_time, end_time, status_code, status_message, attributes, events
		FROM spans`
	args := []interface{}{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY start_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query spans: %w", err)
	}
	defer rows.Close()

	var spans []observability.Span
	for rows.Next() {
		var span observability.Span
		var parentID, statusMessage, attrsJSON, eventsJSON sql.NullString
		var kind string
		var start, end int64
		var statusCode int

		if err := rows.Scan(&span.SpanID, &span.TraceID, &parentID, &span.Name,
			&kind, &start, &end, &statusCode, &statusMessage,
			&attrsJSON, &eventsJSON); err != nil {
			return nil, fmt.Errorf("history: scan span: %w", err)
		}

		span.ParentID = parentID.String
		span.Kind = observability.SpanKind(kind)
		span.StartTime = time.Unix(0, start)
		span.EndTime = time.Unix(0, end)
		span.Status = observability.SpanStatus{
			Code:    observability.StatusCode(statusCode),
			Message: statusMessage.String,
		}
		if attrsJSON.Valid && attrsJSON.String != "" {
			_ = json.Unmarshal([]byte(attrsJSON.String), &span.Attributes)
		}
		if eventsJSON.Valid && eventsJSON.String != "" {
			_ = json.Unmarshal([]byte(eventsJSON.String), &span.Events)
		}
		spans = append(spans, span)
	}
	return spans, rows.Err()
}

// Prune deletes records older than the retention window, returning how
// many were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_calls WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: prune records: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
