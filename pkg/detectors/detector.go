// Package detectors provides the statistical outlier detectors that classify
// rows of numeric columns as anomalous.
package detectors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
)

// Configuration errors.
var (
	ErrEmptyDetectorSet = errors.New("detector set is empty")
	ErrUnknownDetector  = errors.New("unknown detector")
	ErrUnknownVoting    = errors.New("unknown voting rule")
)

// Detector is the capability shared by the single detectors and the
// ensemble voter.
type Detector interface {
	// Detect classifies the rows of every numeric column in ds.
	// Non-numeric columns are ignored; a dataset without numeric
	// columns yields an empty finding, not an error.
	Detect(ds *dataset.Dataset) (*Finding, error)
}

// Strategy is a Detector backed by a single algorithm.
type Strategy interface {
	Detector

	// Kind identifies the algorithm.
	Kind() Kind
}

var (
	_ Strategy = (*IQR)(nil)
	_ Strategy = (*ZScore)(nil)
)

// Kind is the closed set of detector algorithms.
type Kind int

const (
	KindIQR Kind = iota
	KindZScore
	KindIsolation
)

// Kinds lists every detector kind.
var Kinds = []Kind{KindIQR, KindZScore, KindIsolation}

// String returns the method name recorded in findings.
func (k Kind) String() string {
	switch k {
	case KindIQR:
		return "IQR"
	case KindZScore:
		return "Z-Score"
	case KindIsolation:
		return "Isolation Forest"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "iqr":
		return KindIQR, nil
	case "zscore", "z-score", "z_score":
		return KindZScore, nil
	case "isolation", "isolation_forest", "iforest":
		return KindIsolation, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDetector, s)
}

// Config holds the tunables of all detectors.
type Config struct {
	// IQRMultiplier widens the [Q1-k*IQR, Q3+k*IQR] bounds.
	IQRMultiplier float64
	// ZThreshold is the |z| above which a value is anomalous.
	ZThreshold float64
	// Contamination is the fraction of rows the isolation detector flags.
	Contamination float64
	// Trees and SampleSize shape the isolation forest.
	Trees      int
	SampleSize int
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns the documented detector defaults.
func DefaultConfig() Config {
	return Config{
		IQRMultiplier: 1.5,
		ZThreshold:    3.0,
		Contamination: 0.05,
		Trees:         100,
		SampleSize:    256,
		RandomSeed:    42,
	}
}

// Stats holds method-specific diagnostic numbers.
type Stats map[string]float64

// DetectorResult summarizes one member run inside an ensemble finding.
type DetectorResult struct {
	Method            string
	TotalAnomalies    int
	AnomalyPercentage float64
}

// Finding is the result of one detection pass. It is not modified after
// Detect returns.
type Finding struct {
	Method            string
	TotalAnomalies    int
	AnomalyPercentage float64
	AnomaliesByColumn map[string]int
	// AnomalyRows holds the anomalous row positions in ascending order.
	AnomalyRows []int
	// ColumnStats is keyed by column name.
	ColumnStats map[string]Stats
	// ModelStats holds dataset-level diagnostics.
	ModelStats Stats
	// FeatureImportance is the per-column contribution estimate of the
	// isolation detector.
	FeatureImportance map[string]float64
	Detectors         []DetectorResult
	Timestamp         time.Time
}

// NewFinding returns an empty finding for method.
func NewFinding(method string) *Finding {
	return &Finding{
		Method:            method,
		AnomaliesByColumn: make(map[string]int),
		ColumnStats:       make(map[string]Stats),
		FeatureImportance: make(map[string]float64),
		Timestamp:         time.Now(),
	}
}

// ColumnPercentage returns the share of rows flagged in column, in percent.
func (f *Finding) ColumnPercentage(column string, rows int) float64 {
	if f == nil || rows == 0 {
		return 0
	}
	return float64(f.AnomaliesByColumn[column]) / float64(rows) * 100
}

// Mask expands AnomalyRows into a boolean vector of length rows.
func (f *Finding) Mask(rows int) []bool {
	mask := make([]bool, rows)
	if f == nil {
		return mask
	}
	for _, i := range f.AnomalyRows {
		if i >= 0 && i < rows {
			mask[i] = true
		}
	}
	return mask
}

// SetRows fills the row-level fields from mask.
func (f *Finding) SetRows(mask []bool) {
	f.AnomalyRows = f.AnomalyRows[:0]
	for i, flagged := range mask {
		if flagged {
			f.AnomalyRows = append(f.AnomalyRows, i)
		}
	}
	f.TotalAnomalies = len(f.AnomalyRows)
	f.AnomalyPercentage = 0
	if len(mask) > 0 {
		f.AnomalyPercentage = float64(f.TotalAnomalies) / float64(len(mask)) * 100
	}
}

// Summary renders a markdown summary of the finding.
func Summary(f *Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Anomaly Detection Report (%s)\n\n", f.Method)
	fmt.Fprintf(&b, "**Total Anomalies:** %d (%.2f%%)\n\n", f.TotalAnomalies, f.AnomalyPercentage)

	if len(f.AnomaliesByColumn) > 0 {
		b.WriteString("**Anomalies by Column:**\n")
		cols := sortedByValue(f.AnomaliesByColumn)
		for i, c := range cols {
			if i == 10 {
				fmt.Fprintf(&b, "  - ... and %d more columns\n", len(cols)-10)
				break
			}
			fmt.Fprintf(&b, "  - %s: %d anomalies\n", c, f.AnomaliesByColumn[c])
		}
	}

	if len(f.FeatureImportance) > 0 {
		b.WriteString("\n**Feature Importance:**\n")
		cols := sortedByValue(f.FeatureImportance)
		for i, c := range cols {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "  - %s: %.3f\n", c, f.FeatureImportance[c])
		}
	}

	if len(f.AnomaliesByColumn) == 0 {
		b.WriteString("No significant anomalies detected.\n")
	}
	return b.String()
}

func sortedByValue[V int | float64](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
