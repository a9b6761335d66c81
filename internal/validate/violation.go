package validate

import "fmt"

// Kind classifies a single validation finding.
type Kind string

// Violation kinds, in report order.
const (
	KindMalformedInput       Kind = "MALFORMED_INPUT"
	KindMalformedPrediction  Kind = "MALFORMED_PREDICTION"
	KindMissingPrediction    Kind = "MISSING_PREDICTION"
	KindExtraneousPrediction Kind = "EXTRANEOUS_PREDICTION"
	KindDuplicatePrediction  Kind = "DUPLICATE_PREDICTION"
)

var kindOrder = map[Kind]int{
	KindMalformedInput:       0,
	KindMalformedPrediction:  1,
	KindMissingPrediction:    2,
	KindExtraneousPrediction: 3,
	KindDuplicatePrediction:  4,
}

// Violation is one specific, itemized reason a check failed.
type Violation struct {
	Kind Kind `json:"kind"`

	// ID is the record identifier the violation refers to, when known.
	ID string `json:"id,omitempty"`

	// Line is the 1-based line number in the source file, when known.
	Line int `json:"line,omitempty"`

	// Detail is a human-readable description of the finding.
	Detail string `json:"detail,omitempty"`
}

func (v Violation) String() string {
	s := string(v.Kind)
	if v.ID != "" {
		s += fmt.Sprintf(" id=%s", v.ID)
	}
	if v.Line > 0 {
		s += fmt.Sprintf(" line=%d", v.Line)
	}
	if v.Detail != "" {
		s += ": " + v.Detail
	}
	return s
}
