package types

// OutcomeKind is the terminal classification of a finished case
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
	OutcomeError   OutcomeKind = "error"
	OutcomeSkipped OutcomeKind = "skipped"
)

// Valid reports whether k is one of the four terminal kinds
func (k OutcomeKind) Valid() bool {
	switch k {
	case OutcomeSuccess, OutcomeFailure, OutcomeError, OutcomeSkipped:
		return true
	}
	return false
}

// Outcome is a tagged variant: Kind selects the variant and Detail carries its
// payload (failure or error details, or the skip reason).
// The zero value means no outcome has been assigned yet.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

func Failure(details string) Outcome {
	return Outcome{Kind: OutcomeFailure, Detail: details}
}

func Error(details string) Outcome {
	return Outcome{Kind: OutcomeError, Detail: details}
}

// Skipped creates a skipped outcome; the reason is stored verbatim
func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Detail: reason}
}

// IsZero reports whether no outcome was assigned
func (o Outcome) IsZero() bool {
	return o.Kind == ""
}

// Reason returns the skip reason, or "" for other kinds
func (o Outcome) Reason() string {
	if o.Kind != OutcomeSkipped {
		return ""
	}
	return o.Detail
}

func (o Outcome) String() string {
	if o.Detail == "" {
		return string(o.Kind)
	}
	return string(o.Kind) + ": " + o.Detail
}
