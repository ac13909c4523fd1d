package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/StagePlayer/internal/config"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	ProjectID string                 `json:"project_id"`
	SessionID *string                `json:"session_id,omitempty"`
}

// Client manages the Postgres connection for event storage.
type Client struct {
	db        *sql.DB
	projectID string
}

// New connects using the libpq environment variables (PGHOST, PGPORT,
// PGUSER, PGDATABASE, PGSSLMODE). PGPASSWORD honours the *_FILE convention.
func New(ctx context.Context, projectID string) (*Client, error) {
	connStr, err := connString()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:        db,
		projectID: projectID,
	}

	if err := client.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return client, nil
}

func connString() (string, error) {
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return "", err
	}

	parts := []string{
		"host=" + getEnv("PGHOST", "127.0.0.1"),
		"port=" + getEnv("PGPORT", "5432"),
		"user=" + getEnv("PGUSER", "stageplayer"),
	}
	if password != "" {
		parts = append(parts, "password="+quote(password))
	}
	parts = append(parts,
		"dbname="+getEnv("PGDATABASE", "stageplayer"),
		"sslmode="+getEnv("PGSSLMODE", "disable"),
	)
	return strings.Join(parts, " "), nil
}

// quote escapes a value for a key=value connection string.
func quote(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			project_id TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_project_id ON events(project_id);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

// Ping checks the connection is still usable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Append inserts an event into the database.
// Returns error if insert fails.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var sessionPtr *string
	if sessionID != "" {
		sessionPtr = &sessionID
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, project_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.projectID, sessionPtr)
	return err
}

// Query returns the project's last limit events, newest first. A non-empty
// prefix keeps only events whose name starts with it.
func (c *Client) Query(ctx context.Context, limit int, prefix string) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, project_id, session_id
		FROM events
		WHERE project_id = $1 AND ($3 = '' OR starts_with(event, $3))
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, c.projectID, limit, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.ProjectID, &sessionID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
