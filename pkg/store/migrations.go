package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version.
const SchemaVersion = 1

// Migration is one schema step.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Trust score log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS trust_scores (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					dataset_name TEXT NOT NULL,
					field_name TEXT NOT NULL,
					trust_score REAL NOT NULL,
					completeness_score REAL,
					validity_score REAL,
					anomaly_score REAL,
					freshness_score REAL,
					grade TEXT,
					color TEXT,
					sample_size INTEGER,
					timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
					reasons TEXT,
					warnings TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_dataset_field ON trust_scores(dataset_name, field_name)`,
				`CREATE INDEX IF NOT EXISTS idx_timestamp ON trust_scores(timestamp)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies pending migrations, tracking the version in user_version.
func (s *SQLite) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("%w: get schema version: %w", ErrPersistence, err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin migration: %w", ErrPersistence, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: migration %d: %w", ErrPersistence, m.Version, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: update schema version: %w", ErrPersistence, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit migration %d: %w", ErrPersistence, m.Version, err)
		}

		s.log.Info("applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
