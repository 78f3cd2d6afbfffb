package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ayusman/fingertip/internal/calibration"
	"github.com/ayusman/fingertip/internal/detector"
	"github.com/ayusman/fingertip/internal/rayangle"
)

// SessionRepository stores recorded calibration sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the calibration session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a session. A session without an ID is given one.
func (r *SessionRepository) Create(s *calibration.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	data, err := json.Marshal(s.Frames)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}

	_, err = r.db.Exec(
		`INSERT INTO calibration_sessions (id, segment, side, frames, data) VALUES (?, ?, ?, ?, ?)`,
		s.ID.String(), string(s.Key.Segment), string(s.Key.Side), len(s.Frames), string(data),
	)
	return err
}

// CreateDataset inserts every session of ds in a single transaction.
func (r *SessionRepository) CreateDataset(ds calibration.Dataset) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO calibration_sessions (id, segment, side, frames, data) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, sessions := range ds {
		for _, s := range sessions {
			if s.ID == uuid.Nil {
				s.ID = uuid.New()
			}
			data, err := json.Marshal(s.Frames)
			if err != nil {
				return 0, fmt.Errorf("encode session %s: %w", s.ID, err)
			}
			if _, err := stmt.Exec(s.ID.String(), string(s.Key.Segment), string(s.Key.Side), len(s.Frames), string(data)); err != nil {
				return 0, err
			}
			n++
		}
	}

	return n, tx.Commit()
}

// ListByKey retrieves the sessions recorded for key in recording order.
func (r *SessionRepository) ListByKey(key rayangle.Key) ([]calibration.Session, error) {
	rows, err := r.db.Query(
		`SELECT id, segment, side, data FROM calibration_sessions
		 WHERE segment = ? AND side = ?
		 ORDER BY created_at, rowid`,
		string(key.Segment), string(key.Side),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// Dataset loads every stored session grouped by key.
func (r *SessionRepository) Dataset() (calibration.Dataset, error) {
	rows, err := r.db.Query(
		`SELECT id, segment, side, data FROM calibration_sessions ORDER BY created_at, rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}

	ds := make(calibration.Dataset)
	for _, s := range sessions {
		ds.Add(s)
	}
	return ds, nil
}

// Count returns the number of stored sessions.
func (r *SessionRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM calibration_sessions`).Scan(&n)
	return n, err
}

// DeleteAll removes every stored session and returns how many there were.
func (r *SessionRepository) DeleteAll() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM calibration_sessions`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSessions(rows *sql.Rows) ([]calibration.Session, error) {
	var sessions []calibration.Session
	for rows.Next() {
		var id, segment, side, data string
		if err := rows.Scan(&id, &segment, &side, &data); err != nil {
			return nil, err
		}

		s := calibration.Session{
			Key: rayangle.Key{Segment: rayangle.Segment(segment), Side: rayangle.Side(side)},
		}
		var err error
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("session id %q: %w", id, err)
		}
		var frames [][]detector.Record
		if err := json.Unmarshal([]byte(data), &frames); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
		s.Frames = frames
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}
