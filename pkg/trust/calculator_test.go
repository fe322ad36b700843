package trust

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
	"github.com/hed1ad/fieldtrust/pkg/detectors"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestCalculator(opts ...Option) *Calculator {
	return NewCalculator(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func ordersDataset() *dataset.Dataset {
	n := 20
	ids := make([]float64, n)
	revenue := make([]float64, n)
	for i := 0; i < n; i++ {
		ids[i] = float64(i + 1)
		revenue[i] = 1000 + float64(i%5) - 2
	}
	revenue[5] = 100000
	revenue[2], revenue[9], revenue[15] = math.NaN(), math.NaN(), math.NaN()

	return dataset.New("orders",
		dataset.NumericColumn("order_id", ids...),
		dataset.NumericColumn("revenue", revenue...),
	)
}

func TestScoreEndToEnd(t *testing.T) {
	ds := ordersDataset()
	finding, err := detectors.NewIQR(1.5).Detect(ds)
	require.NoError(t, err)
	require.Equal(t, 1, finding.AnomaliesByColumn["revenue"])

	report := newTestCalculator().Score(ds, Inputs{Anomalies: finding, DatasetName: "orders"})
	require.Len(t, report.FieldScores, 2)

	orderID, ok := report.Field("order_id")
	require.True(t, ok)
	assert.GreaterOrEqual(t, orderID.TrustScore, 95.0)
	assert.Equal(t, "A+", orderID.Grade())
	assert.Empty(t, orderID.Warnings)

	revenue, ok := report.Field("revenue")
	require.True(t, ok)
	assert.InDelta(t, 85.0, revenue.Completeness, 1e-9)
	assert.InDelta(t, 90.0, revenue.AnomalyFreedom, 1e-9)
	assert.InDelta(t, 93.0, revenue.TrustScore, 1e-9)
	assert.Less(t, revenue.TrustScore, orderID.TrustScore-5)
	assert.True(t, Has(revenue.Warnings, PartialCompleteness))
	assert.True(t, Has(revenue.Warnings, AnomaliesPresent))

	assert.Equal(t, "orders", report.DatasetName)
	assert.NotEmpty(t, report.RunID)
	assert.InDelta(t, (orderID.TrustScore+revenue.TrustScore)/2, report.OverallTrustScore, 1e-9)
	assert.Equal(t, Metadata{TotalFields: 2, HighTrustFields: 2}, report.Metadata)
	assert.Equal(t, fixedNow, revenue.LastValidated)
}

func TestCleanColumnsScorePerfect(t *testing.T) {
	ds := dataset.New("clean",
		dataset.NumericColumn("a", 1, 2, 3),
		dataset.TextColumn("b", "x", "y", "z"),
	)
	report := newTestCalculator().Score(ds, Inputs{})

	for _, s := range report.FieldScores {
		assert.Equal(t, 100.0, s.Completeness)
		assert.Equal(t, 100.0, s.Validity)
		assert.Equal(t, 100.0, s.AnomalyFreedom)
		assert.Equal(t, 100.0, s.TrustScore)
		assert.Equal(t, 3, s.SampleSize)
	}
}

func TestTrustScoreBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	calc := newTestCalculator()

	for run := 0; run < 25; run++ {
		n := rng.Intn(40)
		a := make([]float64, n)
		ts := make([]time.Time, n)
		for i := range a {
			if rng.Float64() < 0.3 {
				a[i] = math.NaN()
			} else {
				a[i] = rng.NormFloat64() * 100
			}
			if rng.Float64() < 0.8 {
				ts[i] = fixedNow.Add(-time.Duration(rng.Intn(2000)) * time.Hour)
			}
		}
		ds := dataset.New("r", dataset.NumericColumn("a", a...), dataset.TimeColumn("ts", ts...))
		finding, err := detectors.NewZScore(1).Detect(ds)
		require.NoError(t, err)

		v := &Validation{Errors: make([]Issue, rng.Intn(10))}
		for i := range v.Errors {
			v.Errors[i] = Issue{Column: "a", Check: "range", Message: string(rune('a' + i))}
		}

		report := calc.Score(ds, Inputs{Validation: v, Anomalies: finding, FreshnessColumn: "ts"})
		for _, s := range report.FieldScores {
			assert.GreaterOrEqual(t, s.TrustScore, 0.0)
			assert.LessOrEqual(t, s.TrustScore, 100.0)
			assert.InDelta(t, Combine(s.Completeness, s.Validity, s.AnomalyFreedom, s.Freshness), s.TrustScore, 1e-9)
		}
	}
}

func TestCompletenessZeroRows(t *testing.T) {
	ds := dataset.New("empty-rows", dataset.NumericColumn("a"))
	report := newTestCalculator().Score(ds, Inputs{})

	require.Len(t, report.FieldScores, 1)
	assert.Equal(t, 0.0, report.FieldScores[0].Completeness)
	assert.True(t, Has(report.FieldScores[0].Warnings, LowCompleteness))
}

func TestEmptyAndMalformedDatasets(t *testing.T) {
	tests := []struct {
		name string
		ds   *dataset.Dataset
	}{
		{name: "nil", ds: nil},
		{name: "no columns", ds: dataset.New("none")},
		{name: "ragged", ds: dataset.New("bad", dataset.NumericColumn("a", 1, 2), dataset.NumericColumn("b", 1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := newTestCalculator().Score(tt.ds, Inputs{DatasetName: "x"})
			require.NotNil(t, report)
			assert.Empty(t, report.FieldScores)
			assert.Equal(t, 0.0, report.OverallTrustScore)
			assert.False(t, math.IsNaN(report.OverallTrustScore))
		})
	}
}

func TestValidityScore(t *testing.T) {
	issue := func(col, check, msg string) Issue { return Issue{Column: col, Check: check, Message: msg} }

	tests := []struct {
		name string
		v    *Validation
		want float64
	}{
		{name: "no validation result", v: nil, want: 100},
		{name: "clean result", v: &Validation{}, want: 100},
		{
			name: "two errors one warning",
			v: &Validation{
				Errors:   []Issue{issue("f", "null_threshold", "a"), issue("f", "value_range", "b")},
				Warnings: []Issue{issue("f", "data_type", "c")},
			},
			want: 75,
		},
		{
			name: "duplicates count once",
			v: &Validation{
				Errors: []Issue{issue("f", "value_range", "a"), issue("f", "value_range", "a")},
			},
			want: 90,
		},
		{
			name: "other columns ignored",
			v: &Validation{
				Errors: []Issue{issue("g", "value_range", "a")},
			},
			want: 100,
		},
		{
			name: "columnless issue attributed by mention",
			v: &Validation{
				Warnings: []Issue{issue("", "custom", "Column 'f' looks odd")},
			},
			want: 95,
		},
		{
			name: "penalties capped",
			v: &Validation{
				Errors:   distinct("f", 9),
				Warnings: distinct("f", 9),
			},
			want: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validityScore("f", tt.v))
		})
	}
}

func distinct(col string, n int) []Issue {
	out := make([]Issue, n)
	for i := range out {
		out[i] = Issue{Column: col, Check: "c", Message: string(rune('a' + i))}
	}
	return out
}

func TestAnomalyFreedomDampened(t *testing.T) {
	col := dataset.NumericColumn("v", make([]float64, 10)...)

	f := detectors.NewFinding("IQR")
	f.AnomaliesByColumn["v"] = 1
	assert.Equal(t, 80.0, anomalyFreedomScore(col, f))

	f.AnomaliesByColumn["v"] = 8
	assert.Equal(t, 50.0, anomalyFreedomScore(col, f), "penalty is capped at 50")

	assert.Equal(t, 100.0, anomalyFreedomScore(col, nil))
	assert.Equal(t, 100.0, anomalyFreedomScore(dataset.TextColumn("v", "a"), f))
}

func TestFreshnessScoreDecay(t *testing.T) {
	assert.Equal(t, 100.0, FreshnessScore(0, 7))
	assert.Equal(t, 100.0, FreshnessScore(1, 7))
	assert.InDelta(t, 70.0, FreshnessScore(7, 7), 1e-9)
	assert.InDelta(t, 40.0, FreshnessScore(30, 7), 1e-9)
	assert.Equal(t, 0.0, FreshnessScore(60, 7))
	assert.Equal(t, 0.0, FreshnessScore(400, 7))

	prev := FreshnessScore(1, 7)
	for d := 1.5; d <= 60; d += 0.5 {
		cur := FreshnessScore(d, 7)
		assert.Less(t, cur, prev, "day %.1f", d)
		prev = cur
	}
}

func TestFreshnessColumn(t *testing.T) {
	tests := []struct {
		name      string
		col       dataset.Column
		want      float64
		wantWarn  Code
		wantReady bool
	}{
		{
			name: "newest is now",
			col:  dataset.TimeColumn("ts", fixedNow.Add(-72*time.Hour), fixedNow),
			want: 100,
		},
		{
			name:     "forty days stale",
			col:      dataset.TimeColumn("ts", fixedNow.Add(-40*24*time.Hour)),
			want:     40 - 10.0/30*40,
			wantWarn: VeryStale,
		},
		{
			name: "text timestamps parsed",
			col:  dataset.TextColumn("ts", "2024-05-31", "not a date"),
			want: FreshnessScore(1.5, 7),
		},
		{
			name:     "nothing parseable",
			col:      dataset.TextColumn("ts", "soon", ""),
			want:     50,
			wantWarn: NoParseableTimestamps,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := dataset.New("d", tt.col, dataset.NumericColumn("other", make([]float64, tt.col.Len())...))
			report := newTestCalculator().Score(ds, Inputs{FreshnessColumn: "ts"})

			ts, ok := report.Field("ts")
			require.True(t, ok)
			assert.InDelta(t, tt.want, ts.Freshness, 1e-9)
			if tt.wantWarn != 0 {
				assert.True(t, Has(ts.Warnings, tt.wantWarn))
			}

			other, _ := report.Field("other")
			assert.Equal(t, 100.0, other.Freshness)
		})
	}
}

func TestBandsAndGrades(t *testing.T) {
	tests := []struct {
		score float64
		grade string
		color string
		band  Band
	}{
		{score: 97, grade: "A+", color: "#10a37f", band: BandHigh},
		{score: 90, grade: "A", color: "#10a37f", band: BandHigh},
		{score: 86, grade: "B+", color: "#f39c12", band: BandMedium},
		{score: 80, grade: "B", color: "#f39c12", band: BandMedium},
		{score: 75, grade: "C+", color: "#f39c12", band: BandMedium},
		{score: 72, grade: "C", color: "#e67e22", band: BandLow},
		{score: 61, grade: "D", color: "#e67e22", band: BandLow},
		{score: 10, grade: "F", color: "#e74c3c", band: BandLow},
	}

	for _, tt := range tests {
		t.Run(tt.grade, func(t *testing.T) {
			assert.Equal(t, tt.grade, Grade(tt.score))
			assert.Equal(t, tt.color, Color(tt.score))
			assert.Equal(t, tt.band, BandOf(tt.score))
		})
	}
}

func TestDiagnosticRendering(t *testing.T) {
	assert.Equal(t, "Low completeness (42.5%)", Diagnostic{Code: LowCompleteness, Value: 42.5}.String())
	assert.Equal(t, "Data is very stale (45 days old)", Diagnostic{Code: VeryStale, Value: 45}.String())
	assert.Equal(t, []string{"Passes all validation checks"}, Render([]Diagnostic{{Code: PassesValidation}}))
}

func TestWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, WeightCompleteness+WeightValidity+WeightAnomalyFreedom+WeightFreshness, 1e-12)
}
