package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Ray tables - one row per named ray angle table
		`CREATE TABLE IF NOT EXISTS ray_tables (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			fallback_side TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Ray angles - the rays of each segment/side set of a table
		`CREATE TABLE IF NOT EXISTS ray_angles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id TEXT NOT NULL REFERENCES ray_tables(id) ON DELETE CASCADE,
			segment TEXT NOT NULL,
			side TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			angle_x REAL NOT NULL,
			angle_z REAL NOT NULL,
			threshold REAL NOT NULL CHECK(threshold > 0)
		)`,

		// Empty sets - segment/side keys a table knows to have no rays
		`CREATE TABLE IF NOT EXISTS ray_empty_sets (
			table_id TEXT NOT NULL REFERENCES ray_tables(id) ON DELETE CASCADE,
			segment TEXT NOT NULL,
			side TEXT NOT NULL,
			PRIMARY KEY (table_id, segment, side)
		)`,

		// Calibration sessions - recorded frames as JSON
		`CREATE TABLE IF NOT EXISTS calibration_sessions (
			id TEXT PRIMARY KEY,
			segment TEXT NOT NULL,
			side TEXT NOT NULL,
			frames INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_ray_angles_table_id ON ray_angles(table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_calibration_sessions_key ON calibration_sessions(segment, side)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
