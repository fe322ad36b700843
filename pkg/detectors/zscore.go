package detectors

import (
	"math"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
)

// ZScore flags values whose distance from the column mean exceeds
// threshold sample standard deviations.
type ZScore struct {
	threshold float64
}

// NewZScore creates a Z-score detector. A non-positive threshold uses 3.0.
func NewZScore(threshold float64) *ZScore {
	if threshold <= 0 {
		threshold = DefaultConfig().ZThreshold
	}
	return &ZScore{threshold: threshold}
}

// Kind implements Strategy.
func (d *ZScore) Kind() Kind { return KindZScore }

// Threshold returns the configured |z| cut-off.
func (d *ZScore) Threshold() float64 { return d.threshold }

// Detect implements Detector.
func (d *ZScore) Detect(ds *dataset.Dataset) (*Finding, error) {
	report := NewFinding(KindZScore.String())
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	rows := ds.Rows()
	mask := make([]bool, rows)

	for _, col := range ds.NumericColumns() {
		vals := col.Floats()
		if len(vals) == 0 {
			continue
		}
		mean := Mean(vals)
		std := StdDev(vals)
		if std == 0 {
			continue
		}

		count := 0
		for i := 0; i < rows; i++ {
			v, present := col.FloatAt(i)
			if present && math.Abs(v-mean)/std > d.threshold {
				mask[i] = true
				count++
			}
		}

		if count > 0 {
			report.AnomaliesByColumn[col.Name] = count
			report.ColumnStats[col.Name] = Stats{
				"mean":          mean,
				"std":           std,
				"threshold":     d.threshold,
				"outlier_count": float64(count),
			}
		}
	}

	report.SetRows(mask)
	return report, nil
}
