package detectors

import (
	"sort"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
)

// Bounds is the closed interval of non-anomalous values for a column.
type Bounds struct {
	Lower float64
	Upper float64
}

// IQR flags values outside [Q1 - k*IQR, Q3 + k*IQR].
type IQR struct {
	multiplier float64
}

// NewIQR creates an IQR detector. A non-positive multiplier uses 1.5.
func NewIQR(multiplier float64) *IQR {
	if multiplier <= 0 {
		multiplier = DefaultConfig().IQRMultiplier
	}
	return &IQR{multiplier: multiplier}
}

// Kind implements Strategy.
func (d *IQR) Kind() Kind { return KindIQR }

// Multiplier returns the configured k.
func (d *IQR) Multiplier() float64 { return d.multiplier }

// Detect implements Detector.
func (d *IQR) Detect(ds *dataset.Dataset) (*Finding, error) {
	report := NewFinding(KindIQR.String())
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	rows := ds.Rows()
	mask := make([]bool, rows)

	for _, col := range ds.NumericColumns() {
		q1, q3, ok := quartiles(col)
		if !ok {
			continue
		}
		iqr := q3 - q1
		b := Bounds{Lower: q1 - d.multiplier*iqr, Upper: q3 + d.multiplier*iqr}

		count := 0
		for i := 0; i < rows; i++ {
			v, present := col.FloatAt(i)
			if present && (v < b.Lower || v > b.Upper) {
				mask[i] = true
				count++
			}
		}

		if count > 0 {
			report.AnomaliesByColumn[col.Name] = count
			report.ColumnStats[col.Name] = Stats{
				"Q1":            q1,
				"Q3":            q3,
				"IQR":           iqr,
				"lower_bound":   b.Lower,
				"upper_bound":   b.Upper,
				"outlier_count": float64(count),
			}
		}
	}

	report.SetRows(mask)
	return report, nil
}

// Bounds returns the outlier bounds of every numeric column that has at
// least two present values.
func (d *IQR) Bounds(ds *dataset.Dataset) map[string]Bounds {
	out := make(map[string]Bounds)
	for _, col := range ds.NumericColumns() {
		q1, q3, ok := quartiles(col)
		if !ok {
			continue
		}
		iqr := q3 - q1
		out[col.Name] = Bounds{Lower: q1 - d.multiplier*iqr, Upper: q3 + d.multiplier*iqr}
	}
	return out
}

// quartiles returns Q1 and Q3 of the present values. Columns with fewer
// than two present values are skipped.
func quartiles(col dataset.Column) (q1, q3 float64, ok bool) {
	vals := col.Floats()
	if len(vals) < 2 {
		return 0, 0, false
	}
	sort.Float64s(vals)
	return Quantile(vals, 0.25), Quantile(vals, 0.75), true
}
