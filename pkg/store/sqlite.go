package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/hed1ad/fieldtrust/pkg/trust"
)

// Timestamps are written in UTC with a fixed width so that text order is
// time order.
const timestampLayout = "2006-01-02 15:04:05.000000000"

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
	now  func() time.Time
	log  *slog.Logger
	mu   sync.Mutex
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrPersistence)
	}
	o := buildOptions(opts)

	dsn := path
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %w", ErrPersistence, err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrPersistence, err)
	}

	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", ErrPersistence, err)
	}

	s := &SQLite{db: db, path: path, now: o.now, log: o.log}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database path.
func (s *SQLite) Path() string { return s.path }

// Close closes the database.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close database: %w", ErrPersistence, err)
	}
	return nil
}

// Save implements Store.
func (s *SQLite) Save(ctx context.Context, report *trust.Report) error {
	if report == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC().Format(timestampLayout)
	for _, score := range report.FieldScores {
		r := NewRecord(report.DatasetName, score)
		reasons, err := json.Marshal(nonNil(r.Reasons))
		if err != nil {
			return fmt.Errorf("%w: encode reasons: %w", ErrPersistence, err)
		}
		warnings, err := json.Marshal(nonNil(r.Warnings))
		if err != nil {
			return fmt.Errorf("%w: encode warnings: %w", ErrPersistence, err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO trust_scores (
				dataset_name, field_name, trust_score,
				completeness_score, validity_score, anomaly_score, freshness_score,
				grade, color, sample_size, timestamp, reasons, warnings
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.DatasetName, r.FieldName, r.TrustScore,
			r.CompletenessScore, r.ValidityScore, r.AnomalyScore, r.FreshnessScore,
			r.Grade, r.Color, r.SampleSize, ts, string(reasons), string(warnings),
		)
		if err != nil {
			return fmt.Errorf("%w: insert %s.%s: %w", ErrPersistence, r.DatasetName, r.FieldName, err)
		}
		s.log.Debug("saved field score", "dataset", r.DatasetName, "field", r.FieldName, "score", r.TrustScore)
	}

	s.log.Info("saved trust report", "run_id", report.RunID, "dataset", report.DatasetName, "fields", len(report.FieldScores))
	return nil
}

const selectColumns = `id, dataset_name, field_name, trust_score,
	completeness_score, validity_score, anomaly_score, freshness_score,
	grade, color, sample_size, timestamp, reasons, warnings`

// Latest implements Store. The newest record per field is picked by a
// correlated subquery; ties on timestamp go to the higher id.
func (s *SQLite) Latest(ctx context.Context, dataset string) ([]Record, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM trust_scores t1
		WHERE t1.dataset_name = ?
		AND t1.id = (
			SELECT t2.id FROM trust_scores t2
			WHERE t2.dataset_name = t1.dataset_name
			AND t2.field_name = t1.field_name
			ORDER BY t2.timestamp DESC, t2.id DESC
			LIMIT 1
		)
		ORDER BY t1.field_name`, dataset)
}

// History implements Store.
func (s *SQLite) History(ctx context.Context, dataset, field string, windowDays int) ([]Record, error) {
	cutoff := windowStart(s.now(), windowDays).UTC().Format(timestampLayout)

	if field != "" {
		return s.query(ctx, `
			SELECT `+selectColumns+`
			FROM trust_scores
			WHERE dataset_name = ? AND field_name = ?
			AND timestamp >= ?
			ORDER BY timestamp DESC, id DESC`, dataset, field, cutoff)
	}
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM trust_scores
		WHERE dataset_name = ?
		AND timestamp >= ?
		ORDER BY timestamp DESC, id DESC`, dataset, cutoff)
}

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query scores: %w", ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r                 Record
			completeness      sql.NullFloat64
			validity          sql.NullFloat64
			anomaly           sql.NullFloat64
			freshness         sql.NullFloat64
			grade, color      sql.NullString
			sampleSize        sql.NullInt64
			ts                time.Time
			reasons, warnings sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.DatasetName, &r.FieldName, &r.TrustScore,
			&completeness, &validity, &anomaly, &freshness,
			&grade, &color, &sampleSize, &ts, &reasons, &warnings); err != nil {
			return nil, fmt.Errorf("%w: scan score: %w", ErrPersistence, err)
		}

		r.CompletenessScore = completeness.Float64
		r.ValidityScore = validity.Float64
		r.AnomalyScore = anomaly.Float64
		r.FreshnessScore = freshness.Float64
		r.Grade = grade.String
		r.Color = color.String
		r.SampleSize = int(sampleSize.Int64)
		r.Timestamp = ts.UTC()
		if r.Reasons, err = decodeList(reasons); err != nil {
			return nil, err
		}
		if r.Warnings, err = decodeList(warnings); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate scores: %w", ErrPersistence, err)
	}
	return out, nil
}

func decodeList(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, fmt.Errorf("%w: decode list: %w", ErrPersistence, err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
