// Package store persists trust scores as an append-only time series keyed by
// dataset, field and write time.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hed1ad/fieldtrust/pkg/trust"
)

// ErrPersistence wraps every failure of the underlying storage.
var ErrPersistence = errors.New("store: persistence failure")

// DefaultHistoryDays is the window used when History is given none.
const DefaultHistoryDays = 30

// Record is one persisted field score.
type Record struct {
	ID                int64
	DatasetName       string
	FieldName         string
	TrustScore        float64
	CompletenessScore float64
	ValidityScore     float64
	AnomalyScore      float64
	FreshnessScore    float64
	Grade             string
	Color             string
	SampleSize        int
	Timestamp         time.Time
	Reasons           []string
	Warnings          []string
}

// Store is an append-only score log.
type Store interface {
	// Save appends one record per field score. Each write is independent:
	// a failure mid-report leaves the fields already written in place.
	Save(ctx context.Context, report *trust.Report) error
	// Latest returns the newest record of every field of dataset.
	Latest(ctx context.Context, dataset string) ([]Record, error)
	// History returns records of dataset written within the trailing window,
	// newest first. An empty field selects every field.
	History(ctx context.Context, dataset, field string, windowDays int) ([]Record, error)
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
	log *slog.Logger
}

// WithClock sets the time source for write timestamps and history windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewRecord projects a field score of dataset into a record. ID and
// Timestamp are assigned by the store.
func NewRecord(dataset string, s trust.Score) Record {
	return Record{
		DatasetName:       dataset,
		FieldName:         s.FieldName,
		TrustScore:        s.TrustScore,
		CompletenessScore: s.Completeness,
		ValidityScore:     s.Validity,
		AnomalyScore:      s.AnomalyFreedom,
		FreshnessScore:    s.Freshness,
		Grade:             s.Grade(),
		Color:             s.Color(),
		SampleSize:        s.SampleSize,
		Reasons:           trust.Render(s.Reasons),
		Warnings:          trust.Render(s.Warnings),
	}
}

func windowStart(now time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
