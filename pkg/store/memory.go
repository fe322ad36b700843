package store

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hed1ad/fieldtrust/pkg/trust"
)

// Memory is a Store that keeps records in process memory.
type Memory struct {
	mu      sync.Mutex
	records []Record
	nextID  int64
	now     func() time.Time
	log     *slog.Logger
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{nextID: 1, now: o.now, log: o.log}
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, report *trust.Report) error {
	if report == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.now().UTC()
	for _, score := range report.FieldScores {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := NewRecord(report.DatasetName, score)
		r.ID = m.nextID
		r.Timestamp = ts
		m.nextID++
		m.records = append(m.records, r)
	}

	m.log.Debug("saved trust report", "run_id", report.RunID, "dataset", report.DatasetName, "fields", len(report.FieldScores))
	return nil
}

// Latest implements Store.
func (m *Memory) Latest(_ context.Context, dataset string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newest := make(map[string]Record)
	for _, r := range m.records {
		if r.DatasetName != dataset {
			continue
		}
		cur, ok := newest[r.FieldName]
		if !ok || newer(r, cur) {
			newest[r.FieldName] = r
		}
	}

	out := make([]Record, 0, len(newest))
	for _, r := range newest {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldName < out[j].FieldName })
	return out, nil
}

// History implements Store.
func (m *Memory) History(_ context.Context, dataset, field string, windowDays int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := windowStart(m.now(), windowDays)
	var out []Record
	for _, r := range m.records {
		if r.DatasetName != dataset || (field != "" && r.FieldName != field) {
			continue
		}
		if r.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func newer(a, b Record) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

func clone(r Record) Record {
	r.Reasons = slices.Clone(r.Reasons)
	r.Warnings = slices.Clone(r.Warnings)
	return r
}
