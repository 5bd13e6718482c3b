package eta

// Severity classifies a delay for presentation.
type Severity string

const (
	SeverityOnTrack Severity = "on_track"
	SeverityWarning Severity = "warning"
	SeverityOverdue Severity = "overdue"
)

// DefaultWarningMaxDays is the largest delay still reported as a warning.
const DefaultWarningMaxDays = 3

// SeverityPolicy maps raw delay onto a severity. Thresholds are configuration.
type SeverityPolicy struct {
	WarningMaxDays int
}

func (p SeverityPolicy) Classify(delayDays int) Severity {
	switch {
	case delayDays <= 0:
		return SeverityOnTrack
	case delayDays <= p.WarningMaxDays:
		return SeverityWarning
	default:
		return SeverityOverdue
	}
}
