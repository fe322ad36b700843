// Package trust computes per-field trust scores for a dataset from its
// completeness, validation results, anomaly findings and freshness.
package trust

import "time"

// Sub-score weights. They sum to 1.
const (
	WeightCompleteness   = 0.30
	WeightValidity       = 0.30
	WeightAnomalyFreedom = 0.25
	WeightFreshness      = 0.15
)

// Trust band thresholds.
const (
	HighTrust   = 90.0
	MediumTrust = 75.0
)

// Score is the trust score of one field.
type Score struct {
	FieldName      string
	TrustScore     float64
	Completeness   float64
	Validity       float64
	AnomalyFreedom float64
	Freshness      float64
	SampleSize     int
	LastValidated  time.Time
	Reasons        []Diagnostic
	Warnings       []Diagnostic
}

// Combine returns the weighted trust score of four sub-scores.
func Combine(completeness, validity, anomalyFreedom, freshness float64) float64 {
	return completeness*WeightCompleteness +
		validity*WeightValidity +
		anomalyFreedom*WeightAnomalyFreedom +
		freshness*WeightFreshness
}

// Grade returns the letter grade of the score.
func (s Score) Grade() string { return Grade(s.TrustScore) }

// Color returns the display colour of the score.
func (s Score) Color() string { return Color(s.TrustScore) }

// Grade maps a trust score to a letter grade.
func Grade(score float64) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 85:
		return "B+"
	case score >= 80:
		return "B"
	case score >= 75:
		return "C+"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// Color maps a trust score to a hex colour: green, yellow, orange, red.
func Color(score float64) string {
	switch {
	case score >= HighTrust:
		return "#10a37f"
	case score >= MediumTrust:
		return "#f39c12"
	case score >= 60:
		return "#e67e22"
	default:
		return "#e74c3c"
	}
}

// Band is a coarse trust classification.
type Band int

const (
	BandLow Band = iota
	BandMedium
	BandHigh
)

func (b Band) String() string {
	switch b {
	case BandHigh:
		return "high"
	case BandMedium:
		return "medium"
	default:
		return "low"
	}
}

// BandOf classifies a trust score.
func BandOf(score float64) Band {
	switch {
	case score >= HighTrust:
		return BandHigh
	case score >= MediumTrust:
		return BandMedium
	default:
		return BandLow
	}
}

// Metadata counts fields per trust band.
type Metadata struct {
	TotalFields       int
	HighTrustFields   int
	MediumTrustFields int
	LowTrustFields    int
}

// Report is the trust report of one scoring run.
type Report struct {
	RunID             string
	DatasetName       string
	OverallTrustScore float64
	FieldScores       []Score
	Timestamp         time.Time
	Metadata          Metadata
}

// Field returns the score of the named field.
func (r *Report) Field(name string) (Score, bool) {
	for _, s := range r.FieldScores {
		if s.FieldName == name {
			return s, true
		}
	}
	return Score{}, false
}
