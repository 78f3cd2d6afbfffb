package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/fingertip/internal/rayangle"
)

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned for an empty table name.
	ErrInvalidName = errors.New("name must not be empty")
)

// RayTable is a named ray angle table stored in the database.
type RayTable struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Table     *rayangle.Table `json:"table,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RayTableRepository provides CRUD operations for ray tables.
type RayTableRepository struct {
	db *sql.DB
}

// RayTables returns the ray table repository for this store.
func (s *Store) RayTables() *RayTableRepository {
	return &RayTableRepository{db: s.db}
}

// Save stores table under name. Saving an existing name replaces its rays
// and keeps its ID.
func (r *RayTableRepository) Save(name string, table *rayangle.Table) (*RayTable, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if table == nil {
		return nil, fmt.Errorf("save %q: table is nil", name)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	rt := &RayTable{Name: name, Table: table, UpdatedAt: now}

	err = tx.QueryRow(`SELECT id, created_at FROM ray_tables WHERE name = ?`, name).Scan(&rt.ID, &rt.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rt.ID = uuid.NewString()
		rt.CreatedAt = now
		_, err = tx.Exec(
			`INSERT INTO ray_tables (id, name, fallback_side, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			rt.ID, name, string(table.Fallback()), rt.CreatedAt, rt.UpdatedAt,
		)
	case err == nil:
		if _, err = tx.Exec(`DELETE FROM ray_angles WHERE table_id = ?`, rt.ID); err != nil {
			return nil, err
		}
		if _, err = tx.Exec(`DELETE FROM ray_empty_sets WHERE table_id = ?`, rt.ID); err != nil {
			return nil, err
		}
		_, err = tx.Exec(
			`UPDATE ray_tables SET fallback_side = ?, updated_at = ? WHERE id = ?`,
			string(table.Fallback()), rt.UpdatedAt, rt.ID,
		)
	}
	if err != nil {
		return nil, err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO ray_angles (table_id, segment, side, sequence, angle_x, angle_z, threshold)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, k := range table.Keys() {
		set, _ := table.Set(k)
		for i, ray := range set.Rays() {
			if _, err := stmt.Exec(rt.ID, string(k.Segment), string(k.Side), i, ray.AngleX, ray.AngleZ, ray.SelectionThreshold); err != nil {
				return nil, err
			}
		}
	}

	for _, k := range table.Empty() {
		if _, err := tx.Exec(
			`INSERT INTO ray_empty_sets (table_id, segment, side) VALUES (?, ?, ?)`,
			rt.ID, string(k.Segment), string(k.Side),
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Get retrieves a ray table with its rays by ID.
func (r *RayTableRepository) Get(id string) (*RayTable, error) {
	return r.get(`WHERE id = ?`, id)
}

// GetByName retrieves a ray table with its rays by name.
func (r *RayTableRepository) GetByName(name string) (*RayTable, error) {
	return r.get(`WHERE name = ?`, name)
}

func (r *RayTableRepository) get(where string, arg any) (*RayTable, error) {
	rt := &RayTable{}
	var fallback string

	err := r.db.QueryRow(
		`SELECT id, name, fallback_side, created_at, updated_at FROM ray_tables `+where,
		arg,
	).Scan(&rt.ID, &rt.Name, &fallback, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(
		`SELECT segment, side, angle_x, angle_z, threshold
		 FROM ray_angles WHERE table_id = ?
		 ORDER BY segment, side, sequence`,
		rt.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(map[rayangle.Key][]rayangle.RayAngle)
	for rows.Next() {
		var segment, side string
		var ray rayangle.RayAngle
		if err := rows.Scan(&segment, &side, &ray.AngleX, &ray.AngleZ, &ray.SelectionThreshold); err != nil {
			return nil, err
		}
		k := rayangle.Key{Segment: rayangle.Segment(segment), Side: rayangle.Side(side)}
		entries[k] = append(entries[k], ray)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	empty, err := r.emptyKeys(rt.ID)
	if err != nil {
		return nil, err
	}

	table, err := rayangle.NewTable(rayangle.Side(fallback), entries)
	if err != nil {
		return nil, fmt.Errorf("ray table %s: %w", rt.ID, err)
	}
	rt.Table = table.WithEmpty(empty...)
	return rt, nil
}

func (r *RayTableRepository) emptyKeys(id string) ([]rayangle.Key, error) {
	rows, err := r.db.Query(`SELECT segment, side FROM ray_empty_sets WHERE table_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []rayangle.Key
	for rows.Next() {
		var segment, side string
		if err := rows.Scan(&segment, &side); err != nil {
			return nil, err
		}
		keys = append(keys, rayangle.Key{Segment: rayangle.Segment(segment), Side: rayangle.Side(side)})
	}
	return keys, rows.Err()
}

// List retrieves every ray table without its rays, most recently updated first.
func (r *RayTableRepository) List() ([]*RayTable, error) {
	rows, err := r.db.Query(
		`SELECT id, name, created_at, updated_at FROM ray_tables ORDER BY updated_at DESC, name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []*RayTable
	for rows.Next() {
		rt := &RayTable{}
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
			return nil, err
		}
		tables = append(tables, rt)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tables, nil
}

// Delete removes a ray table and its rays.
func (r *RayTableRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM ray_tables WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
