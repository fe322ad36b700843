// Package ensemble combines the row-level verdicts of several detectors
// with a voting rule.
package ensemble

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
	"github.com/hed1ad/fieldtrust/pkg/detectors"
	"github.com/hed1ad/fieldtrust/pkg/detectors/iforest"
)

// Voting is the rule that merges per-detector row flags.
type Voting int

const (
	// Majority flags a row when more than half of the detectors flag it.
	Majority Voting = iota
	// Unanimous flags a row only when every detector flags it.
	Unanimous
	// Any flags a row when at least one detector flags it.
	Any
)

func (v Voting) String() string {
	switch v {
	case Majority:
		return "majority"
	case Unanimous:
		return "unanimous"
	case Any:
		return "any"
	default:
		return fmt.Sprintf("Voting(%d)", int(v))
	}
}

// ParseVoting maps a configuration name to a Voting rule. Unknown names
// return Majority together with detectors.ErrUnknownVoting so the caller
// can decide whether to reject or proceed.
func ParseVoting(s string) (Voting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "majority", "":
		return Majority, nil
	case "unanimous":
		return Unanimous, nil
	case "any":
		return Any, nil
	}
	return Majority, fmt.Errorf("%w: %q", detectors.ErrUnknownVoting, s)
}

// Option configures an Ensemble.
type Option func(*Ensemble)

// WithIsolationAvailable controls whether the density-based detector may
// be used. When false, a requested isolation member is dropped.
func WithIsolationAvailable(ok bool) Option {
	return func(e *Ensemble) {
		e.isolation = ok
	}
}

// WithLogger sets the logger used for configuration warnings.
func WithLogger(l *slog.Logger) Option {
	return func(e *Ensemble) {
		e.log = l
	}
}

var _ detectors.Detector = (*Ensemble)(nil)

// Ensemble runs a fixed set of detectors over the same dataset.
type Ensemble struct {
	voting    Voting
	members   []detectors.Strategy
	isolation bool
	log       *slog.Logger
}

// New builds an ensemble over kinds. An empty set, or one that is empty
// after dropping unavailable detectors, is rejected before anything runs.
func New(kinds []detectors.Kind, voting Voting, cfg detectors.Config, opts ...Option) (*Ensemble, error) {
	e := &Ensemble{voting: voting, isolation: true, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	if len(kinds) == 0 {
		return nil, detectors.ErrEmptyDetectorSet
	}

	if voting < Majority || voting > Any {
		e.log.Warn("unknown voting rule, using majority", "voting", int(voting))
		e.voting = Majority
	}

	seen := make(map[detectors.Kind]bool, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			continue
		}
		seen[k] = true

		switch k {
		case detectors.KindIQR:
			e.members = append(e.members, detectors.NewIQR(cfg.IQRMultiplier))
		case detectors.KindZScore:
			e.members = append(e.members, detectors.NewZScore(cfg.ZThreshold))
		case detectors.KindIsolation:
			if !e.isolation {
				e.log.Warn("isolation detector unavailable, dropping from ensemble")
				continue
			}
			e.members = append(e.members, iforest.NewDetector(cfg))
		default:
			return nil, fmt.Errorf("%w: %v", detectors.ErrUnknownDetector, k)
		}
	}

	if len(e.members) == 0 {
		return nil, detectors.ErrEmptyDetectorSet
	}
	return e, nil
}

// Voting returns the rule in effect.
func (e *Ensemble) Voting() Voting { return e.voting }

// Members returns the kinds of the detectors that will run.
func (e *Ensemble) Members() []detectors.Kind {
	out := make([]detectors.Kind, len(e.members))
	for i, m := range e.members {
		out[i] = m.Kind()
	}
	return out
}

// Detect runs every member and merges their row flags.
func (e *Ensemble) Detect(ds *dataset.Dataset) (*detectors.Finding, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	reports := make([]*detectors.Finding, 0, len(e.members))
	for _, m := range e.members {
		r, err := m.Detect(ds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Kind(), err)
		}
		reports = append(reports, r)
	}

	return e.combine(ds.Rows(), reports), nil
}

func (e *Ensemble) combine(rows int, reports []*detectors.Finding) *detectors.Finding {
	combined := detectors.NewFinding(fmt.Sprintf("Ensemble (%s voting)", e.voting))

	votes := make([]int, rows)
	for _, r := range reports {
		for i, flagged := range r.Mask(rows) {
			if flagged {
				votes[i]++
			}
		}
	}

	n := len(reports)
	mask := make([]bool, rows)
	for i, v := range votes {
		switch e.voting {
		case Unanimous:
			mask[i] = v == n
		case Any:
			mask[i] = v > 0
		default:
			// exactly half is not a majority
			mask[i] = 2*v > n
		}
	}
	combined.SetRows(mask)

	cols := make(map[string]struct{})
	for _, r := range reports {
		for c := range r.AnomaliesByColumn {
			cols[c] = struct{}{}
		}
	}
	for c := range cols {
		var sum float64
		for _, r := range reports {
			sum += float64(r.AnomaliesByColumn[c])
		}
		combined.AnomaliesByColumn[c] = int(math.Round(sum / float64(n)))
	}

	for _, r := range reports {
		combined.Detectors = append(combined.Detectors, detectors.DetectorResult{
			Method:            r.Method,
			TotalAnomalies:    r.TotalAnomalies,
			AnomalyPercentage: r.AnomalyPercentage,
		})
		for c, v := range r.FeatureImportance {
			combined.FeatureImportance[c] = v
		}
	}

	return combined
}
