package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hed1ad/fieldtrust/internal/cli"
	"github.com/hed1ad/fieldtrust/pkg/detectors"
	"github.com/hed1ad/fieldtrust/pkg/detectors/ensemble"
	"github.com/hed1ad/fieldtrust/pkg/export"
	fcsv "github.com/hed1ad/fieldtrust/pkg/io/csv"
	"github.com/hed1ad/fieldtrust/pkg/store"
	"github.com/hed1ad/fieldtrust/pkg/trust"
)

type scoreOptions struct {
	name            string
	freshnessColumn string
	validationFile  string
	exportPath      string
	persist         bool
	summary         bool
}

func (a *app) scoreCmd() *cobra.Command {
	opts := &scoreOptions{}

	cmd := &cobra.Command{
		Use:   "score <file.csv>",
		Short: "Score every field of a CSV dataset",
		Long: `Load a CSV file, run the configured outlier detector, compute a trust
score per column and print the report.

Scores are appended to the score database unless --persist=false is given.
A validation result produced elsewhere can be supplied as JSON:

  {"errors": [{"column": "revenue", "check": "value_range", "message": "..."}],
   "warnings": []}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScore(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "", "dataset name (default: file name)")
	f.StringVar(&opts.freshnessColumn, "freshness-column", "", "timestamp column that drives freshness")
	f.StringVar(&opts.validationFile, "validation", "", "JSON validation result")
	f.StringVar(&opts.exportPath, "export", "", "write the tabular export to this CSV file")
	f.BoolVar(&opts.persist, "persist", true, "append the scores to the score database")
	f.BoolVar(&opts.summary, "summary", false, "print the anomaly detection summary")

	f.String("method", "", "anomaly method (iqr, zscore, isolation, ensemble, none)")
	f.StringSlice("detectors", nil, "ensemble members")
	f.String("voting", "", "ensemble voting rule (majority, unanimous, any)")
	f.Float64("freshness-threshold", 0, "staleness threshold in days")
	bindKey(f, "method", "anomaly.method")
	bindKey(f, "detectors", "ensemble.detectors")
	bindKey(f, "voting", "ensemble.voting")
	bindKey(f, "freshness-threshold", "trust.freshness_threshold_days")

	return cmd
}

func (a *app) runScore(cmd *cobra.Command, path string, opts *scoreOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var readOpts []fcsv.Option
	if opts.name != "" {
		readOpts = append(readOpts, fcsv.WithName(opts.name))
	}
	r, err := fcsv.NewReader(path, readOpts...)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer func() { _ = r.Close() }()

	ds, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	slog.Info("loaded dataset", "dataset", ds.Name, "rows", ds.Rows(), "columns", len(ds.Columns))

	detector, err := a.cfg.Detector(ensemble.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	var finding *detectors.Finding
	if detector != nil {
		finding, err = detector.Detect(ds)
		if err != nil {
			return fmt.Errorf("anomaly detection failed: %w", err)
		}
		slog.Info("anomaly detection complete", "method", finding.Method, "anomalies", finding.TotalAnomalies)
	}

	validation, err := readValidation(opts.validationFile)
	if err != nil {
		return err
	}

	calc := trust.NewCalculator(trust.WithFreshnessThreshold(a.cfg.Trust.FreshnessThresholdDays))
	report := calc.Score(ds, trust.Inputs{
		Validation:      validation,
		Anomalies:       finding,
		FreshnessColumn: opts.freshnessColumn,
		DatasetName:     ds.Name,
	})

	if err := cli.RenderReport(out, report); err != nil {
		return err
	}
	if opts.summary && finding != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, detectors.Summary(finding))
	}

	var s store.Store
	if opts.persist {
		db, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(db)
		s = db
	}

	res, exportErr := export.New(s).Export(ctx, report, opts.persist)
	if opts.exportPath != "" {
		if err := writeExport(opts.exportPath, res.Rows); err != nil {
			return err
		}
		slog.Info("wrote export", "path", opts.exportPath, "rows", len(res.Rows))
	}
	if exportErr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatError("scores computed but not saved"))
		return exportErr
	}
	return nil
}

type issueJSON struct {
	Column  string `json:"column"`
	Check   string `json:"check"`
	Message string `json:"message"`
}

type validationJSON struct {
	Errors   []issueJSON `json:"errors"`
	Warnings []issueJSON `json:"warnings"`
}

func readValidation(path string) (*trust.Validation, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read validation result: %w", err)
	}
	var raw validationJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse validation result: %w", err)
	}

	convert := func(in []issueJSON) []trust.Issue {
		out := make([]trust.Issue, len(in))
		for i, is := range in {
			out[i] = trust.Issue(is)
		}
		return out
	}
	return &trust.Validation{Errors: convert(raw.Errors), Warnings: convert(raw.Warnings)}, nil
}

func writeExport(path string, rows []export.Row) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return export.WriteCSV(f, rows)
}
