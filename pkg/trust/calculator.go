package trust

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
	"github.com/hed1ad/fieldtrust/pkg/detectors"
)

// Validity deductions.
const (
	errorPenalty      = 10.0
	maxErrorPenalty   = 50.0
	warningPenalty    = 5.0
	maxWarningPenalty = 25.0
)

// Anomaly dampening: the column anomaly rate counts double but can cost at
// most 50 points. Kept as named tunables for compatibility with stored scores.
const (
	AnomalyRateFactor = 2.0
	MaxAnomalyPenalty = 50.0
)

// Issue is one validation error or warning.
type Issue struct {
	Column  string
	Check   string
	Message string
}

// Validation is an externally produced validation result.
type Validation struct {
	Errors   []Issue
	Warnings []Issue
}

// Inputs are the optional evidence for a scoring run.
type Inputs struct {
	// Validation, when nil, leaves every validity sub-score at 100.
	Validation *Validation
	// Anomalies, when nil, leaves every anomaly-freedom sub-score at 100.
	Anomalies *detectors.Finding
	// FreshnessColumn names the column whose newest timestamp drives freshness.
	FreshnessColumn string
	DatasetName     string
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithFreshnessThreshold sets the staleness threshold in days.
func WithFreshnessThreshold(days float64) Option {
	return func(c *Calculator) {
		if days >= 1 && days < 30 {
			c.staleDays = days
		}
	}
}

// WithClock sets the time source used for freshness and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Calculator) {
		c.log = l
	}
}

// Calculator computes trust reports. It holds no mutable state and may be
// reused across runs.
type Calculator struct {
	staleDays float64
	now       func() time.Time
	log       *slog.Logger
}

// NewCalculator creates a calculator with a 7 day staleness threshold.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		staleDays: 7,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score computes a trust report for every column of ds. A nil, empty or
// malformed dataset yields a report with no fields and an overall score of 0.
func (c *Calculator) Score(ds *dataset.Dataset, in Inputs) *Report {
	now := c.now()
	report := &Report{
		RunID:       uuid.NewString(),
		DatasetName: in.DatasetName,
		Timestamp:   now,
	}
	if report.DatasetName == "" && ds != nil {
		report.DatasetName = ds.Name
	}
	if report.DatasetName == "" {
		report.DatasetName = "dataset"
	}

	if ds == nil || len(ds.Columns) == 0 {
		return report
	}
	if err := ds.Validate(); err != nil {
		c.log.Warn("malformed dataset, scoring no fields", "dataset", report.DatasetName, "error", err)
		return report
	}
	if in.FreshnessColumn != "" {
		if _, ok := ds.Column(in.FreshnessColumn); !ok {
			c.log.Warn("freshness column not found", "dataset", report.DatasetName, "column", in.FreshnessColumn)
		}
	}

	report.FieldScores = make([]Score, 0, len(ds.Columns))
	var total float64
	for _, col := range ds.Columns {
		s := c.field(col, in, now)
		report.FieldScores = append(report.FieldScores, s)
		total += s.TrustScore

		switch BandOf(s.TrustScore) {
		case BandHigh:
			report.Metadata.HighTrustFields++
		case BandMedium:
			report.Metadata.MediumTrustFields++
		default:
			report.Metadata.LowTrustFields++
		}
	}
	report.Metadata.TotalFields = len(report.FieldScores)
	report.OverallTrustScore = total / float64(len(report.FieldScores))

	return report
}

func (c *Calculator) field(col dataset.Column, in Inputs, now time.Time) Score {
	completeness := completenessScore(col)
	validity := validityScore(col.Name, in.Validation)
	anomaly := anomalyFreedomScore(col, in.Anomalies)

	fresh := freshness{score: 100, parsed: true}
	if in.FreshnessColumn != "" && col.Name == in.FreshnessColumn {
		fresh = c.freshnessOf(col, now)
	}

	reasons, warnings := diagnose(completeness, validity, anomaly, fresh)

	return Score{
		FieldName:      col.Name,
		TrustScore:     clamp(Combine(completeness, validity, anomaly, fresh.score)),
		Completeness:   completeness,
		Validity:       validity,
		AnomalyFreedom: anomaly,
		Freshness:      fresh.score,
		SampleSize:     col.Len(),
		LastValidated:  now,
		Reasons:        reasons,
		Warnings:       warnings,
	}
}

func completenessScore(col dataset.Column) float64 {
	if col.Len() == 0 {
		return 0
	}
	return clamp((1 - float64(col.MissingCount())/float64(col.Len())) * 100)
}

func validityScore(field string, v *Validation) float64 {
	if v == nil {
		return 100
	}
	score := 100.0
	score -= math.Min(maxErrorPenalty, float64(distinctIssues(field, v.Errors))*errorPenalty)
	score -= math.Min(maxWarningPenalty, float64(distinctIssues(field, v.Warnings))*warningPenalty)
	return math.Max(0, score)
}

// distinctIssues counts unique issues attributed to field. An issue without
// a column is attributed by a quoted mention of the field in its message.
func distinctIssues(field string, issues []Issue) int {
	seen := make(map[Issue]struct{})
	for _, is := range issues {
		if is.Column == field || (is.Column == "" && mentions(is.Message, field)) {
			seen[is] = struct{}{}
		}
	}
	return len(seen)
}

func mentions(msg, field string) bool {
	return strings.Contains(msg, "'"+field+"'") || strings.Contains(msg, `"`+field+`"`)
}

func anomalyFreedomScore(col dataset.Column, f *detectors.Finding) float64 {
	if f == nil || !col.IsNumeric() || col.Len() == 0 {
		return 100
	}
	pct := f.ColumnPercentage(col.Name, col.Len())
	return math.Max(0, 100-math.Min(MaxAnomalyPenalty, pct*AnomalyRateFactor))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
