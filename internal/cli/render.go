package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hed1ad/fieldtrust/pkg/export"
	"github.com/hed1ad/fieldtrust/pkg/store"
	"github.com/hed1ad/fieldtrust/pkg/trust"
)

// RenderReport writes a summary box and one table row per field.
func RenderReport(w io.Writer, report *trust.Report) error {
	if report == nil || len(report.FieldScores) == 0 {
		_, err := fmt.Fprintln(w, FormatWarning("No fields scored."))
		return err
	}

	md := report.Metadata
	summary := strings.Join([]string{
		FormatTitle("Trust report: " + report.DatasetName),
		fmt.Sprintf("Overall: %.1f/100 %s", report.OverallTrustScore, FormatScore(report.OverallTrustScore)),
		fmt.Sprintf("Fields: %d  high %d  medium %d  low %d",
			md.TotalFields, md.HighTrustFields, md.MediumTrustFields, md.LowTrustFields),
		SubtleStyle.Render("run " + report.RunID),
	}, "\n")
	if _, err := fmt.Fprintln(w, BoxStyle.Render(summary)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		HeaderStyle.Render("Field"),
		HeaderStyle.Render("Score"),
		HeaderStyle.Render("Grade"),
		HeaderStyle.Render("Complete"),
		HeaderStyle.Render("Valid"),
		HeaderStyle.Render("Anomaly-Free"),
		HeaderStyle.Render("Fresh"),
		HeaderStyle.Render("Warnings"),
	); err != nil {
		return err
	}

	for _, r := range export.Rows(report) {
		if _, err := fmt.Fprintf(tw, "%s\t%.2f\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%s\n",
			r.FieldName, r.TrustScore, FormatScore(r.TrustScore),
			r.Completeness, r.Validity, r.AnomalyFree, r.Freshness,
			warningsCell(r.Warnings),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// RenderRecords writes stored records as a table, newest first as given.
func RenderRecords(w io.Writer, records []store.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, SubtleStyle.Render("No scores stored."))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
		HeaderStyle.Render("Time"),
		HeaderStyle.Render("Dataset"),
		HeaderStyle.Render("Field"),
		HeaderStyle.Render("Score"),
		HeaderStyle.Render("Grade"),
		HeaderStyle.Render("Samples"),
	); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%d\n",
			r.Timestamp.Format(export.LastValidatedLayout),
			r.DatasetName, r.FieldName, r.TrustScore,
			GradeStyle(r.TrustScore).Render(r.Grade), r.SampleSize,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func warningsCell(s string) string {
	if s == export.NoWarnings {
		return SubtleStyle.Render("-")
	}
	return WarningStyle.Render(s)
}
