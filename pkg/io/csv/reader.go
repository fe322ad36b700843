// Package csv loads CSV files into typed datasets.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
	fio "github.com/hed1ad/fieldtrust/pkg/io"
)

// ErrNoColumns is returned for input without a single column.
var ErrNoColumns = errors.New("csv: no columns")

// DefaultMissing lists the cell values read as missing, compared
// case-insensitively after trimming.
var DefaultMissing = []string{"", "na", "n/a", "nan", "null", "none"}

var _ fio.Reader = (*Reader)(nil)

// Reader reads a dataset from CSV.
type Reader struct {
	closer    io.Closer
	reader    *csv.Reader
	hasHeader bool
	headers   []string
	name      string
	missing   map[string]struct{}
	skipped   int
	log       *slog.Logger
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithName sets the dataset name.
func WithName(name string) Option {
	return func(r *Reader) {
		r.name = name
	}
}

// WithMissing replaces the missing-value tokens.
func WithMissing(tokens ...string) Option {
	return func(r *Reader) {
		r.missing = tokenSet(tokens)
	}
}

// WithDelimiter sets the field delimiter.
func WithDelimiter(d rune) Option {
	return func(r *Reader) {
		r.reader.Comma = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		r.log = l
	}
}

// NewReader creates a reader over the named file. The dataset is named
// after the file unless WithName is given.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	r, err := newReader(file, file, append([]Option{WithName(name)}, opts...))
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

// FromReader creates a reader over src. The caller owns src.
func FromReader(src io.Reader, opts ...Option) (*Reader, error) {
	return newReader(src, nil, opts)
}

func newReader(src io.Reader, closer io.Closer, opts []Option) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	r := &Reader{
		closer:    closer,
		reader:    cr,
		hasHeader: true,
		name:      "dataset",
		missing:   tokenSet(DefaultMissing),
		log:       slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoColumns
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		r.headers = headers
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Skipped returns the number of rows dropped for a wrong field count.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Read returns all rows as a dataset. Each column is numeric when every
// present cell parses as a number, a timestamp when every present cell
// parses as a time, and text otherwise.
func (r *Reader) Read() (*dataset.Dataset, error) {
	var records [][]string

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if r.headers == nil {
			r.headers = make([]string, len(record))
			for i := range record {
				r.headers[i] = fmt.Sprintf("col_%d", i)
			}
		}
		if len(record) != len(r.headers) {
			r.skipped++
			continue // Skip malformed rows
		}
		records = append(records, record)
	}

	if len(r.headers) == 0 {
		return nil, ErrNoColumns
	}
	if r.skipped > 0 {
		r.log.Warn("skipped malformed csv rows", "dataset", r.name, "rows", r.skipped)
	}

	cols := make([]dataset.Column, len(r.headers))
	for j, h := range r.headers {
		cells := make([]string, len(records))
		for i, rec := range records {
			cells[i] = rec[j]
		}
		cols[j] = r.column(strings.TrimSpace(h), cells)
	}

	ds := dataset.New(r.name, cols...)
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Reader) column(name string, cells []string) dataset.Column {
	present := make([]bool, len(cells))
	nums := make([]float64, len(cells))
	times := make([]time.Time, len(cells))
	numeric, timed, seen := true, true, false

	for i, c := range cells {
		if r.isMissing(c) {
			continue
		}
		present[i] = true
		seen = true

		if numeric {
			f, err := cast.ToFloat64E(strings.TrimSpace(c))
			if err != nil {
				numeric = false
			} else {
				nums[i] = f
			}
		}
		if timed {
			t, ok := dataset.ParseTime(c)
			if !ok {
				timed = false
			} else {
				times[i] = t
			}
		}
	}

	col := dataset.Column{Name: name, Values: make([]dataset.Value, len(cells))}
	switch {
	case seen && numeric:
		col.Type = dataset.Numeric
	case seen && timed:
		col.Type = dataset.Timestamp
	default:
		col.Type = dataset.Text
	}

	for i, c := range cells {
		if !present[i] {
			continue
		}
		switch col.Type {
		case dataset.Numeric:
			if dataset.Finite(nums[i]) {
				col.Values[i] = dataset.Float(nums[i])
			}
		case dataset.Timestamp:
			col.Values[i] = dataset.Time(times[i])
		default:
			col.Values[i] = dataset.String(c)
		}
	}
	return col
}

func (r *Reader) isMissing(cell string) bool {
	_, ok := r.missing[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return set
}
