package iforest

import (
	"math"
	"sort"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
	"github.com/hed1ad/fieldtrust/pkg/detectors"
)

var _ detectors.Strategy = (*Detector)(nil)

// Detector flags the contamination fraction of rows that isolate most
// easily across all numeric columns jointly.
type Detector struct {
	contamination float64
	trees         int
	sampleSize    int
	seed          int64
}

// NewDetector creates a density-based detector from cfg.
func NewDetector(cfg detectors.Config) *Detector {
	def := detectors.DefaultConfig()
	d := &Detector{
		contamination: cfg.Contamination,
		trees:         cfg.Trees,
		sampleSize:    cfg.SampleSize,
		seed:          cfg.RandomSeed,
	}
	if d.contamination <= 0 || d.contamination > 0.5 {
		d.contamination = def.Contamination
	}
	if d.trees <= 0 {
		d.trees = def.Trees
	}
	if d.sampleSize <= 0 {
		d.sampleSize = def.SampleSize
	}
	return d
}

// Kind implements detectors.Strategy.
func (d *Detector) Kind() detectors.Kind { return detectors.KindIsolation }

// Detect implements detectors.Detector.
func (d *Detector) Detect(ds *dataset.Dataset) (*detectors.Finding, error) {
	report := detectors.NewFinding(detectors.KindIsolation.String())
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	cols := ds.NumericColumns()
	rows := ds.Rows()
	if len(cols) == 0 || rows == 0 {
		return report, nil
	}

	x := standardize(impute(cols, rows))

	forest := New(WithTrees(d.trees), WithSampleSize(d.sampleSize), WithSeed(d.seed))
	if err := forest.Fit(x); err != nil {
		return nil, err
	}
	scores, err := forest.Predict(x)
	if err != nil {
		return nil, err
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	threshold := detectors.Quantile(sorted, 1-d.contamination)
	mask := make([]bool, rows)
	var anomSum, normSum float64
	for i, s := range scores {
		if s > threshold {
			mask[i] = true
			anomSum += s
		} else {
			normSum += s
		}
	}
	report.SetRows(mask)

	for j, col := range cols {
		c := contribution(x, mask, j)
		if c <= 0 {
			continue
		}
		report.FeatureImportance[col.Name] = c
		if n := int(float64(report.TotalAnomalies) * c); n > 0 {
			report.AnomaliesByColumn[col.Name] = n
		}
	}

	nAnom := report.TotalAnomalies
	nNorm := rows - nAnom
	report.ModelStats = detectors.Stats{
		"mean_anomaly_score": 0,
		"mean_normal_score":  0,
		"threshold":          threshold,
		"contamination":      d.contamination,
		"n_estimators":       float64(forest.Trees()),
	}
	if nAnom > 0 {
		report.ModelStats["mean_anomaly_score"] = anomSum / float64(nAnom)
	}
	if nNorm > 0 {
		report.ModelStats["mean_normal_score"] = normSum / float64(nNorm)
	}

	return report, nil
}

// impute builds a row-major matrix, filling missing cells with the column
// median of the present values.
func impute(cols []dataset.Column, rows int) [][]float64 {
	x := make([][]float64, rows)
	for i := range x {
		x[i] = make([]float64, len(cols))
	}
	for j, col := range cols {
		present := col.Floats()
		fill := 0.0
		if len(present) > 0 {
			fill = detectors.Median(present)
		}
		for i := 0; i < rows; i++ {
			if v, ok := col.FloatAt(i); ok {
				x[i][j] = v
			} else {
				x[i][j] = fill
			}
		}
	}
	return x
}

// standardize scales every feature to zero mean and unit variance in place.
// Constant features become zero.
func standardize(x [][]float64) [][]float64 {
	if len(x) == 0 {
		return x
	}
	for j := range x[0] {
		col := column(x, j)
		mean := detectors.Mean(col)
		std := detectors.PopStdDev(col)
		for i := range x {
			if std == 0 {
				x[i][j] = 0
				continue
			}
			x[i][j] = (x[i][j] - mean) / std
		}
	}
	return x
}

// contribution estimates how strongly feature j separates anomalous rows
// from normal ones: the absolute mean difference over the feature's
// standard deviation, capped at 1.
func contribution(x [][]float64, mask []bool, j int) float64 {
	var anom, norm []float64
	for i, row := range x {
		if mask[i] {
			anom = append(anom, row[j])
		} else {
			norm = append(norm, row[j])
		}
	}
	if len(anom) == 0 || len(norm) == 0 {
		return 0
	}
	std := detectors.PopStdDev(column(x, j))
	if std == 0 {
		return 0
	}
	sep := math.Abs(detectors.Mean(anom) - detectors.Mean(norm))
	return math.Min(sep/std, 1)
}

func column(x [][]float64, j int) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = row[j]
	}
	return out
}
