// Package export projects trust reports into flat rows for downstream
// dashboards and optionally persists them.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hed1ad/fieldtrust/pkg/store"
	"github.com/hed1ad/fieldtrust/pkg/trust"
)

// ErrNoStore is returned when persistence is requested without a store.
var ErrNoStore = fmt.Errorf("%w: no store configured", store.ErrPersistence)

// Header is the column set of the tabular export. Downstream workbooks bind
// to these names.
var Header = []string{
	"Dataset",
	"Field_Name",
	"Trust_Score",
	"Grade",
	"Color",
	"Completeness",
	"Validity",
	"Anomaly_Free",
	"Freshness",
	"Sample_Size",
	"Last_Validated",
	"Warnings",
	"Reasons",
}

// LastValidatedLayout formats the Last_Validated column.
const LastValidatedLayout = "2006-01-02 15:04:05"

// Placeholders for empty Warnings and Reasons cells.
const (
	NoWarnings = "None"
	NoReasons  = "Good quality"
)

const listSep = "; "

// Row is one field of the tabular export.
type Row struct {
	Dataset       string
	FieldName     string
	TrustScore    float64
	Grade         string
	Color         string
	Completeness  float64
	Validity      float64
	AnomalyFree   float64
	Freshness     float64
	SampleSize    int
	LastValidated time.Time
	Warnings      string
	Reasons       string
}

// Strings returns the row's cells in Header order.
func (r Row) Strings() []string {
	return []string{
		r.Dataset,
		r.FieldName,
		formatScore(r.TrustScore),
		r.Grade,
		r.Color,
		formatScore(r.Completeness),
		formatScore(r.Validity),
		formatScore(r.AnomalyFree),
		formatScore(r.Freshness),
		strconv.Itoa(r.SampleSize),
		r.LastValidated.Format(LastValidatedLayout),
		r.Warnings,
		r.Reasons,
	}
}

// Rows projects every field score of report into a row. Scores are rounded
// to two decimals; grade and colour come from the unrounded score.
func Rows(report *trust.Report) []Row {
	if report == nil {
		return nil
	}
	rows := make([]Row, 0, len(report.FieldScores))
	for _, s := range report.FieldScores {
		rows = append(rows, Row{
			Dataset:       report.DatasetName,
			FieldName:     s.FieldName,
			TrustScore:    round2(s.TrustScore),
			Grade:         s.Grade(),
			Color:         s.Color(),
			Completeness:  round2(s.Completeness),
			Validity:      round2(s.Validity),
			AnomalyFree:   round2(s.AnomalyFreedom),
			Freshness:     round2(s.Freshness),
			SampleSize:    s.SampleSize,
			LastValidated: s.LastValidated,
			Warnings:      joinOr(trust.Render(s.Warnings), NoWarnings),
			Reasons:       joinOr(trust.Render(s.Reasons), NoReasons),
		})
	}
	return rows
}

// WriteCSV writes rows with a Header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Strings()); err != nil {
			return fmt.Errorf("write row %s: %w", r.FieldName, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Tooltip renders the hover text of a field score.
func Tooltip(s trust.Score) string {
	lines := []string{
		fmt.Sprintf("Trust Score: %.1f/100 (%s)", s.TrustScore, s.Grade()),
		"",
		"Component Scores:",
		fmt.Sprintf("  Completeness: %.1f/100", s.Completeness),
		fmt.Sprintf("  Validity: %.1f/100", s.Validity),
		fmt.Sprintf("  Anomaly-Free: %.1f/100", s.AnomalyFreedom),
		fmt.Sprintf("  Freshness: %.1f/100", s.Freshness),
		"",
	}

	if len(s.Reasons) > 0 {
		lines = append(lines, "✓ Strengths:")
		for _, r := range trust.Render(s.Reasons) {
			lines = append(lines, "  - "+r)
		}
		lines = append(lines, "")
	}

	if len(s.Warnings) > 0 {
		lines = append(lines, "⚠ Warnings:")
		for _, w := range trust.Render(s.Warnings) {
			lines = append(lines, "  - "+w)
		}
	}

	return strings.Join(lines, "\n")
}

// MatrixRow is one field of the sub-score matrix.
type MatrixRow struct {
	FieldName    string
	TrustScore   float64
	Completeness float64
	Validity     float64
	AnomalyFree  float64
	Freshness    float64
}

// Matrix returns the rounded sub-scores per field, ordered by field name.
// A field listed twice keeps its first score.
func Matrix(report *trust.Report) []MatrixRow {
	seen := make(map[string]struct{})
	var out []MatrixRow
	for _, r := range Rows(report) {
		if _, dup := seen[r.FieldName]; dup {
			continue
		}
		seen[r.FieldName] = struct{}{}
		out = append(out, MatrixRow{
			FieldName:    r.FieldName,
			TrustScore:   r.TrustScore,
			Completeness: r.Completeness,
			Validity:     r.Validity,
			AnomalyFree:  r.AnomalyFree,
			Freshness:    r.Freshness,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldName < out[j].FieldName })
	return out
}

// Result is the output of one export.
type Result struct {
	Rows []Row
	// Tooltips maps field name to tooltip text.
	Tooltips map[string]string
	// Persisted reports whether the report reached the store.
	Persisted bool
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		e.log = l
	}
}

// Exporter projects reports and triggers persistence.
type Exporter struct {
	store store.Store
	log   *slog.Logger
}

// New creates an exporter writing to s. s may be nil when persistence is
// never requested.
func New(s store.Store, opts ...Option) *Exporter {
	e := &Exporter{store: s, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export projects report and, when persist is set, saves it. A save failure
// is returned alongside the complete Result so the caller can retry the
// write without rescoring.
func (e *Exporter) Export(ctx context.Context, report *trust.Report, persist bool) (*Result, error) {
	res := &Result{
		Rows:     Rows(report),
		Tooltips: make(map[string]string),
	}
	if report != nil {
		for _, s := range report.FieldScores {
			res.Tooltips[s.FieldName] = Tooltip(s)
		}
	}

	if !persist || report == nil {
		return res, nil
	}
	if e.store == nil {
		return res, ErrNoStore
	}
	if err := e.store.Save(ctx, report); err != nil {
		e.log.Error("failed to persist trust report", "dataset", report.DatasetName, "run_id", report.RunID, "error", err)
		if !errors.Is(err, store.ErrPersistence) {
			err = fmt.Errorf("%w: %w", store.ErrPersistence, err)
		}
		return res, err
	}
	res.Persisted = true
	return res, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, listSep)
}
