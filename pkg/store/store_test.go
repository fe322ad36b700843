package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fieldtrust/pkg/trust"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func report(dataset string, scores ...float64) *trust.Report {
	r := &trust.Report{RunID: "run", DatasetName: dataset}
	names := []string{"a", "b", "c", "d"}
	for i, s := range scores {
		r.FieldScores = append(r.FieldScores, trust.Score{
			FieldName:      names[i],
			TrustScore:     s,
			Completeness:   s,
			Validity:       100,
			AnomalyFreedom: 90,
			Freshness:      100,
			SampleSize:     10 + i,
			Reasons:        []trust.Diagnostic{{Code: trust.PassesValidation}},
			Warnings:       []trust.Diagnostic{{Code: trust.PartialCompleteness, Value: s}},
		})
	}
	return r
}

func openSQLite(t *testing.T, c *clock) Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), MemoryDSN, WithClock(c.now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openMemory(t *testing.T, c *clock) Store {
	t.Helper()
	return NewMemory(WithClock(c.now))
}

var implementations = []struct {
	name string
	open func(*testing.T, *clock) Store
}{
	{name: "sqlite", open: openSQLite},
	{name: "memory", open: openMemory},
}

func TestRoundTrip(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			c := newClock()
			s := impl.open(t, c)
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, report("orders", 91.5, 72.25)))

			got, err := s.Latest(ctx, "orders")
			require.NoError(t, err)
			require.Len(t, got, 2)

			assert.Equal(t, "a", got[0].FieldName)
			assert.InDelta(t, 91.5, got[0].TrustScore, 1e-9)
			assert.InDelta(t, 91.5, got[0].CompletenessScore, 1e-9)
			assert.InDelta(t, 90.0, got[0].AnomalyScore, 1e-9)
			assert.Equal(t, "A", got[0].Grade)
			assert.Equal(t, "#10a37f", got[0].Color)
			assert.Equal(t, 10, got[0].SampleSize)
			assert.Equal(t, []string{"Passes all validation checks"}, got[0].Reasons)
			assert.Equal(t, []string{"Some missing values (91.5% complete)"}, got[0].Warnings)
			assert.True(t, c.t.Equal(got[0].Timestamp), "timestamp %v", got[0].Timestamp)

			assert.Equal(t, "b", got[1].FieldName)
			assert.Equal(t, "C", got[1].Grade)
			assert.NotEqual(t, got[0].ID, got[1].ID)
		})
	}
}

func TestLatestPicksNewestPerField(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			c := newClock()
			s := impl.open(t, c)
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, report("orders", 50, 60)))
			c.advance(time.Hour)
			require.NoError(t, s.Save(ctx, report("orders", 80)))
			require.NoError(t, s.Save(ctx, report("other", 10, 10, 10)))

			got, err := s.Latest(ctx, "orders")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.InDelta(t, 80.0, got[0].TrustScore, 1e-9)
			assert.InDelta(t, 60.0, got[1].TrustScore, 1e-9)
		})
	}
}

func TestLatestSameTimestampPrefersLastWrite(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			s := impl.open(t, newClock())
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, report("orders", 50)))
			require.NoError(t, s.Save(ctx, report("orders", 70)))

			got, err := s.Latest(ctx, "orders")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.InDelta(t, 70.0, got[0].TrustScore, 1e-9)
		})
	}
}

func TestHistoryWindowAndOrder(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			c := newClock()
			s := impl.open(t, c)
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, report("orders", 10, 11)))
			c.advance(20 * 24 * time.Hour)
			require.NoError(t, s.Save(ctx, report("orders", 20, 21)))
			c.advance(15 * 24 * time.Hour)
			require.NoError(t, s.Save(ctx, report("orders", 30, 31)))

			all, err := s.History(ctx, "orders", "", 0)
			require.NoError(t, err)
			require.Len(t, all, 4, "the first batch is 35 days old")
			for i := 1; i < len(all); i++ {
				assert.False(t, all[i].Timestamp.After(all[i-1].Timestamp), "newest first")
			}
			assert.InDelta(t, 31.0, all[0].TrustScore, 1e-9)

			a, err := s.History(ctx, "orders", "a", 30)
			require.NoError(t, err)
			require.Len(t, a, 2)
			assert.InDelta(t, 30.0, a[0].TrustScore, 1e-9)
			assert.InDelta(t, 20.0, a[1].TrustScore, 1e-9)

			week, err := s.History(ctx, "orders", "a", 7)
			require.NoError(t, err)
			assert.Len(t, week, 1)

			none, err := s.History(ctx, "missing", "", 30)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestSaveEmptyReport(t *testing.T) {
	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			s := impl.open(t, newClock())
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, nil))
			require.NoError(t, s.Save(ctx, &trust.Report{DatasetName: "empty"}))

			got, err := s.Latest(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestSQLitePartialWrite(t *testing.T) {
	c := newClock()
	s, err := OpenSQLite(context.Background(), MemoryDSN, WithClock(c.now))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.Exec(`CREATE TRIGGER reject_c BEFORE INSERT ON trust_scores
		WHEN NEW.field_name = 'c'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	err = s.Save(context.Background(), report("orders", 90, 80, 70, 60))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))

	got, err := s.Latest(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, got, 2, "fields written before the failure stay persisted")
	assert.Equal(t, "a", got[0].FieldName)
	assert.Equal(t, "b", got[1].FieldName)
}

func TestSQLiteFileAndMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scores.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Save(ctx, report("orders", 88)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	got, err := s.Latest(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 88.0, got[0].TrustScore, 1e-9)

	var indexes int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'index' AND name IN ('idx_dataset_field', 'idx_timestamp')`).Scan(&indexes))
	assert.Equal(t, 2, indexes)
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestMemoryLen(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Save(context.Background(), report("x", 1, 2, 3)))
	assert.Equal(t, 3, m.Len())
}
