package trust

import "fmt"

// Code identifies one kind of reason or warning attached to a field score.
type Code int

const (
	ExcellentCompleteness Code = iota + 1
	PartialCompleteness
	LowCompleteness

	PassesValidation
	MinorValidationWarnings
	ValidationErrors

	NoSignificantAnomalies
	AnomaliesPresent
	HighAnomalyRate

	VeryFresh
	ReasonablyFresh
	SomewhatStale
	VeryStale
	NoParseableTimestamps
)

// Diagnostic is a structured reason or warning. Value carries the number
// the code refers to: a percentage for completeness and anomaly codes,
// an age in days for freshness codes.
type Diagnostic struct {
	Code  Code
	Value float64
}

// String renders the diagnostic as advisory text.
func (d Diagnostic) String() string {
	switch d.Code {
	case ExcellentCompleteness:
		return "Excellent data completeness (≥95%)"
	case PartialCompleteness:
		return fmt.Sprintf("Some missing values (%.1f%% complete)", d.Value)
	case LowCompleteness:
		return fmt.Sprintf("Low completeness (%.1f%%)", d.Value)
	case PassesValidation:
		return "Passes all validation checks"
	case MinorValidationWarnings:
		return "Minor validation warnings only"
	case ValidationErrors:
		return "Has validation errors"
	case NoSignificantAnomalies:
		return "No significant anomalies detected"
	case AnomaliesPresent:
		return fmt.Sprintf("Anomalies detected (%.1f%% penalty)", d.Value)
	case HighAnomalyRate:
		return fmt.Sprintf("High anomaly rate (%.1f%%)", d.Value)
	case VeryFresh:
		return "Data is very fresh (≤1 day old)"
	case ReasonablyFresh:
		return "Data is reasonably fresh"
	case SomewhatStale:
		return fmt.Sprintf("Data is somewhat stale (%.0f days old)", d.Value)
	case VeryStale:
		return fmt.Sprintf("Data is very stale (%.0f days old)", d.Value)
	case NoParseableTimestamps:
		return "No parseable timestamps for freshness"
	default:
		return fmt.Sprintf("Diagnostic(%d)", int(d.Code))
	}
}

// Render converts diagnostics to their text form.
func Render(ds []Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

// Has reports whether ds contains code.
func Has(ds []Diagnostic, code Code) bool {
	for _, d := range ds {
		if d.Code == code {
			return true
		}
	}
	return false
}

func diagnose(completeness, validity, anomaly float64, fresh freshness) (reasons, warnings []Diagnostic) {
	switch {
	case completeness >= 95:
		reasons = append(reasons, Diagnostic{Code: ExcellentCompleteness, Value: completeness})
	case completeness >= 80:
		warnings = append(warnings, Diagnostic{Code: PartialCompleteness, Value: completeness})
	default:
		warnings = append(warnings, Diagnostic{Code: LowCompleteness, Value: completeness})
	}

	switch {
	case validity >= 95:
		reasons = append(reasons, Diagnostic{Code: PassesValidation, Value: validity})
	case validity >= 80:
		reasons = append(reasons, Diagnostic{Code: MinorValidationWarnings, Value: validity})
	default:
		warnings = append(warnings, Diagnostic{Code: ValidationErrors, Value: validity})
	}

	switch {
	case anomaly >= 95:
		reasons = append(reasons, Diagnostic{Code: NoSignificantAnomalies, Value: 100 - anomaly})
	case anomaly >= 80:
		warnings = append(warnings, Diagnostic{Code: AnomaliesPresent, Value: 100 - anomaly})
	default:
		warnings = append(warnings, Diagnostic{Code: HighAnomalyRate, Value: 100 - anomaly})
	}

	switch {
	case !fresh.parsed:
		warnings = append(warnings, Diagnostic{Code: NoParseableTimestamps})
	case fresh.score >= 95:
		reasons = append(reasons, Diagnostic{Code: VeryFresh, Value: fresh.days})
	case fresh.score >= 70:
		reasons = append(reasons, Diagnostic{Code: ReasonablyFresh, Value: fresh.days})
	case fresh.score >= 40:
		warnings = append(warnings, Diagnostic{Code: SomewhatStale, Value: fresh.days})
	default:
		warnings = append(warnings, Diagnostic{Code: VeryStale, Value: fresh.days})
	}

	return reasons, warnings
}
