package trust

import (
	"math"
	"time"

	"github.com/hed1ad/fieldtrust/pkg/dataset"
)

// Freshness decay anchors, in days and points.
const (
	freshDays     = 1.0
	staleHorizon  = 30.0
	zeroHorizon   = 60.0
	thresholdMark = 70.0
	horizonMark   = 40.0
	unknownScore  = 50.0
)

type freshness struct {
	score  float64
	days   float64
	parsed bool
}

func (c *Calculator) freshnessOf(col dataset.Column, now time.Time) freshness {
	newest, ok := maxTime(col)
	if !ok {
		return freshness{score: unknownScore}
	}
	days := now.Sub(newest).Hours() / 24
	return freshness{score: FreshnessScore(days, c.staleDays), days: days, parsed: true}
}

// FreshnessScore maps an age in days to 0-100. It is 100 up to one day,
// decays linearly to 70 at threshold days, to 40 at 30 days, and to 0 at
// 60 days.
func FreshnessScore(days, threshold float64) float64 {
	switch {
	case days <= freshDays:
		return 100
	case days <= threshold:
		return 100 - days/threshold*(100-thresholdMark)
	case days <= staleHorizon:
		return thresholdMark - (days-threshold)/(staleHorizon-threshold)*(thresholdMark-horizonMark)
	default:
		over := (days - staleHorizon) / (zeroHorizon - staleHorizon) * horizonMark
		return math.Max(0, horizonMark-math.Min(horizonMark, over))
	}
}

// maxTime returns the newest timestamp in col. Text cells are parsed with
// dataset.ParseTime; numeric columns never yield a timestamp.
func maxTime(col dataset.Column) (time.Time, bool) {
	var newest time.Time
	found := false
	for _, v := range col.Values {
		if !v.Valid {
			continue
		}
		var t time.Time
		switch col.Type {
		case dataset.Timestamp:
			t = v.Time
		case dataset.Text:
			parsed, ok := dataset.ParseTime(v.Str)
			if !ok {
				continue
			}
			t = parsed
		default:
			continue
		}
		if t.IsZero() {
			continue
		}
		if !found || t.After(newest) {
			newest = t
			found = true
		}
	}
	return newest, found
}
