package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event EventRecord) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, session_id, timestamp, event_type, sim_time, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.SessionID, event.Timestamp, event.EventType, event.SimTime, string(payloadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var payloadStr string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.EventType, &e.SimTime, &payloadStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const eventColumns = `id, session_id, timestamp, event_type, sim_time, payload`

func (r *SQLiteEventRepository) GetBySession(ctx context.Context, sessionID string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? ORDER BY rowid ASC`
	return r.getMany(ctx, query, sessionID)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, sessionID string, eventType string) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? AND event_type = ? ORDER BY rowid ASC`
	return r.getMany(ctx, query, sessionID, eventType)
}

// ---------------------------------------------------------
// SQLiteFlightRepository
// ---------------------------------------------------------

type SQLiteFlightRepository struct {
	db *sql.DB
}

func NewSQLiteFlightRepository(db *sql.DB) *SQLiteFlightRepository {
	return &SQLiteFlightRepository{db: db}
}

func (r *SQLiteFlightRepository) Create(ctx context.Context, f Flight) error {
	if f.Status == "" {
		f.Status = StatusInFlight
	}
	query := `
		INSERT INTO flights (session_id, pilot, status, started_at, start_height)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, f.SessionID, f.Pilot, f.Status, f.StartedAt, f.StartHeight)
	if err != nil {
		return fmt.Errorf("failed to create flight: %w", err)
	}
	return nil
}

func (r *SQLiteFlightRepository) Finish(ctx context.Context, res FlightResult) error {
	query := `
		UPDATE flights SET
			status = ?,
			ended_at = ?,
			outcome = ?,
			landing_velocity = ?,
			balloon_exploded = ?,
			sim_time = ?
		WHERE session_id = ?
	`
	out, err := r.db.ExecContext(ctx, query,
		StatusLanded, res.EndedAt, res.Outcome, res.LandingVelocity, res.BalloonExploded, res.SimTime, res.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish flight: %w", err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("finish %s: %w", res.SessionID, ErrFlightNotFound)
	}
	return nil
}

func (r *SQLiteFlightRepository) Abort(ctx context.Context, sessionID string, endedAt time.Time, simTime float64) error {
	query := `UPDATE flights SET status = ?, ended_at = ?, sim_time = ? WHERE session_id = ? AND status = ?`
	_, err := r.db.ExecContext(ctx, query, StatusAborted, endedAt, simTime, sessionID, StatusInFlight)
	return err
}

func (r *SQLiteFlightRepository) AddPop(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE flights SET pops = pops + 1 WHERE session_id = ?`, sessionID)
	return err
}

const flightColumns = `session_id, pilot, status, started_at, start_height, ended_at, outcome, landing_velocity, balloon_exploded, sim_time, pops`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFlight(row rowScanner) (*Flight, error) {
	var f Flight
	var ended sql.NullTime
	err := row.Scan(
		&f.SessionID, &f.Pilot, &f.Status, &f.StartedAt, &f.StartHeight, &ended,
		&f.Outcome, &f.LandingVelocity, &f.BalloonExploded, &f.SimTime, &f.Pops,
	)
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		f.EndedAt = &t
	}
	return &f, nil
}

func (r *SQLiteFlightRepository) Get(ctx context.Context, sessionID string) (*Flight, error) {
	query := `SELECT ` + flightColumns + ` FROM flights WHERE session_id = ?`
	f, err := scanFlight(r.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFlightNotFound
	}
	return f, err
}

func (r *SQLiteFlightRepository) List(ctx context.Context, limit int) ([]Flight, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + flightColumns + ` FROM flights ORDER BY started_at DESC, rowid DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flights []Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	return flights, rows.Err()
}
