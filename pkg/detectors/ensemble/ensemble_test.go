package ensemble

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
	"github.com/hed1ad/fieldtrust/pkg/detectors"
)

func withOutliers() *dataset.Dataset {
	return dataset.New("outliers",
		dataset.NumericColumn("value", 10, 12, 11, 13, 100, 12, 11),
		dataset.NumericColumn("score", 50, 52, 51, 53, 500, 52, 51),
	)
}

func noisy(n int, seed int64) *dataset.Dataset {
	rng := rand.New(rand.NewSource(seed))
	a := make([]float64, n)
	b := make([]float64, n)
	for i := range a {
		a[i] = rng.NormFloat64() * 10
		b[i] = rng.ExpFloat64() * 5
	}
	a[3], b[9] = 120, 90
	return dataset.New("noisy", dataset.NumericColumn("a", a...), dataset.NumericColumn("b", b...))
}

func TestNewRejectsEmptySet(t *testing.T) {
	_, err := New(nil, Majority, detectors.DefaultConfig())
	assert.ErrorIs(t, err, detectors.ErrEmptyDetectorSet)
}

func TestNewDropsUnavailableIsolation(t *testing.T) {
	e, err := New(
		[]detectors.Kind{detectors.KindIQR, detectors.KindIsolation},
		Any,
		detectors.DefaultConfig(),
		WithIsolationAvailable(false),
	)
	require.NoError(t, err)
	assert.Equal(t, []detectors.Kind{detectors.KindIQR}, e.Members())

	_, err = New([]detectors.Kind{detectors.KindIsolation}, Any, detectors.DefaultConfig(), WithIsolationAvailable(false))
	assert.ErrorIs(t, err, detectors.ErrEmptyDetectorSet)
}

func TestNewUnknownVotingFallsBack(t *testing.T) {
	e, err := New([]detectors.Kind{detectors.KindIQR}, Voting(42), detectors.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, Majority, e.Voting())
}

func TestParseVoting(t *testing.T) {
	tests := []struct {
		in      string
		want    Voting
		wantErr bool
	}{
		{in: "majority", want: Majority},
		{in: "UNANIMOUS", want: Unanimous},
		{in: "any", want: Any},
		{in: "plurality", want: Majority, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVoting(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, detectors.ErrUnknownVoting)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVotingRules(t *testing.T) {
	cfg := detectors.DefaultConfig()
	cfg.ZThreshold = 2.0
	kinds := []detectors.Kind{detectors.KindIQR, detectors.KindZScore}

	tests := []struct {
		voting   Voting
		method   string
		wantRows []int
	}{
		{voting: Majority, method: "Ensemble (majority voting)", wantRows: []int{4}},
		{voting: Unanimous, method: "Ensemble (unanimous voting)", wantRows: []int{4}},
		{voting: Any, method: "Ensemble (any voting)", wantRows: []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.voting.String(), func(t *testing.T) {
			e, err := New(kinds, tt.voting, cfg)
			require.NoError(t, err)

			f, err := e.Detect(withOutliers())
			require.NoError(t, err)
			assert.Equal(t, tt.method, f.Method)
			assert.Equal(t, tt.wantRows, f.AnomalyRows)
			assert.Len(t, f.Detectors, 2)
		})
	}
}

func TestMajorityTieIsNotFlagged(t *testing.T) {
	// Default z threshold flags nothing here while IQR flags row 4,
	// so the two-member vote is split exactly in half.
	kinds := []detectors.Kind{detectors.KindIQR, detectors.KindZScore}

	majority, err := New(kinds, Majority, detectors.DefaultConfig())
	require.NoError(t, err)
	f, err := majority.Detect(withOutliers())
	require.NoError(t, err)
	assert.Empty(t, f.AnomalyRows)

	anyRule, err := New(kinds, Any, detectors.DefaultConfig())
	require.NoError(t, err)
	f, err = anyRule.Detect(withOutliers())
	require.NoError(t, err)
	assert.Equal(t, []int{4}, f.AnomalyRows)
}

func TestVotingSetInclusion(t *testing.T) {
	cfg := detectors.DefaultConfig()
	cfg.ZThreshold = 2.0
	cfg.Trees = 30
	kinds := []detectors.Kind{detectors.KindIQR, detectors.KindZScore, detectors.KindIsolation}

	for _, seed := range []int64{1, 2, 3} {
		ds := noisy(120, seed)

		rows := make(map[Voting]map[int]bool)
		for _, v := range []Voting{Unanimous, Majority, Any} {
			e, err := New(kinds, v, cfg)
			require.NoError(t, err)
			f, err := e.Detect(ds)
			require.NoError(t, err)

			rows[v] = make(map[int]bool)
			for _, r := range f.AnomalyRows {
				rows[v][r] = true
			}
		}

		for r := range rows[Unanimous] {
			assert.True(t, rows[Majority][r], "unanimous row %d missing from majority", r)
		}
		for r := range rows[Majority] {
			assert.True(t, rows[Any][r], "majority row %d missing from any", r)
		}
	}
}

func TestColumnCountsAreRoundedMean(t *testing.T) {
	cfg := detectors.DefaultConfig()
	cfg.ZThreshold = 2.0
	e, err := New([]detectors.Kind{detectors.KindIQR, detectors.KindZScore}, Majority, cfg)
	require.NoError(t, err)

	ds := dataset.New("d",
		dataset.NumericColumn("v", 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 30, 31),
	)
	f, err := e.Detect(ds)
	require.NoError(t, err)

	var sum int
	for _, d := range f.Detectors {
		sum += d.TotalAnomalies
	}
	want := int(float64(sum)/2 + 0.5)
	assert.Equal(t, want, f.AnomaliesByColumn["v"])
}

func TestDetectRejectsRaggedDataset(t *testing.T) {
	e, err := New([]detectors.Kind{detectors.KindIQR}, Majority, detectors.DefaultConfig())
	require.NoError(t, err)

	_, err = e.Detect(dataset.New("bad", dataset.NumericColumn("a", 1, 2), dataset.NumericColumn("b", 1)))
	assert.ErrorIs(t, err, dataset.ErrRaggedColumns)
}

func TestEnsembleServesAsDetector(t *testing.T) {
	e, err := New([]detectors.Kind{detectors.KindIQR}, Any, detectors.DefaultConfig())
	require.NoError(t, err)

	var d detectors.Detector = e
	f, err := d.Detect(withOutliers())
	require.NoError(t, err)
	assert.Equal(t, []int{4}, f.AnomalyRows)
}
