package models

// OutcomeKind is the tri-state result of a price extraction.
type OutcomeKind int

const (
	OutcomeValue OutcomeKind = iota
	OutcomeUnavailable
	OutcomeUnavailableCaptured
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeValue:
		return "value"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeUnavailableCaptured:
		return "unavailable_captured"
	default:
		return "unknown"
	}
}

// Outcome is what the extraction engine hands back to the row processor.
// SnapshotPath is set only for OutcomeUnavailableCaptured, and only when the
// snapshot was actually written.
type Outcome struct {
	Kind         OutcomeKind
	Value        string
	Source       string // strategy that produced Value: "dom", "markup" or "url"
	SnapshotPath string
}

// Price returns the value to store in a Record.
func (o Outcome) Price() string {
	if o.Kind == OutcomeValue && o.Value != "" {
		return o.Value
	}
	return Unavailable
}
