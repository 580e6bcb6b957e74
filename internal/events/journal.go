package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Journal is an append-only SQLite event store.
type Journal struct {
	db        *sql.DB
	path      string
	sessionID string
	version   int
	logger    *zap.Logger
}

// JournalConfig holds journal configuration
type JournalConfig struct {
	Path      string
	SessionID string // Optional: stamped on events that carry none
	Logger    *zap.Logger
}

// OpenJournal opens (creating if needed) the journal database and brings
// its schema up to date.
func OpenJournal(ctx context.Context, cfg *JournalConfig) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", cfg.Path, err)
	}
	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open journal %s: %w", cfg.Path, err)
	}
	version, err := upgradeSchema(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}
	logger.Debug("journal opened", zap.String("path", cfg.Path), zap.Int("schema_version", version))

	return &Journal{db: db, path: cfg.Path, sessionID: cfg.SessionID, version: version, logger: logger}, nil
}

// SchemaVersion returns the schema version of the open journal.
func (j *Journal) SchemaVersion() int { return j.version }

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an event to the journal.
func (j *Journal) Record(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if !event.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	if event.SessionID == "" {
		event.SessionID = j.sessionID
	}
	if event.Data == nil {
		event.Data = make(map[string]interface{})
	}

	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO workflow_events (
			id, type, timestamp, session_id, phase, task_id, severity, message, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = j.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.SessionID,
		string(event.Phase),
		event.TaskID,
		string(event.Severity),
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, phase=%s): %w", event.Type, event.Phase, err)
	}
	j.logger.Debug("event recorded", zap.String("type", string(event.Type)), zap.String("id", event.ID))
	return nil
}

// List retrieves events matching the filter in the order they were
// recorded. With a Limit, the most recent matches are kept.
func (j *Journal) List(ctx context.Context, filter Filter) ([]*Event, error) {
	query := `
		SELECT seq, id, type, timestamp, session_id, phase, task_id, severity, message, data
		FROM workflow_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Phase != "" {
		query += " AND phase = ?"
		args = append(args, string(filter.Phase))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, filter.AfterTime.UTC().Format(time.RFC3339Nano))
	}
	if !filter.BeforeTime.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.BeforeTime.UTC().Format(time.RFC3339Nano))
	}

	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	result, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for i, k := 0, len(result)-1; i < k; i, k = i+1, k-1 {
		result[i], result[k] = result[k], result[i]
	}
	return result, nil
}

// Count returns the number of events in the journal.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// scanEvents scans rows into Event structs
func scanEvents(rows *sql.Rows) ([]*Event, error) {
	result := []*Event{}

	for rows.Next() {
		var event Event
		var seq int64
		var eventType, ts, phase, severity, data string
		err := rows.Scan(
			&seq,
			&event.ID,
			&eventType,
			&ts,
			&event.SessionID,
			&phase,
			&event.TaskID,
			&severity,
			&event.Message,
			&data,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Type = EventType(eventType)
		event.Phase = types.Phase(phase)
		event.Severity = EventSeverity(severity)
		if event.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("event %s has invalid timestamp %q: %w", event.ID, ts, err)
		}

		event.Data = make(map[string]interface{})
		if data != "" && data != "{}" {
			if err := json.Unmarshal([]byte(data), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return result, nil
}
