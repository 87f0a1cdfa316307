package model

import "time"

// LoadState is the outcome of one repository load.
type LoadState string

const (
	LoadStateSuccess LoadState = "SUCCESS" // every entry loaded
	LoadStatePartial LoadState = "PARTIAL" // some entries skipped
	LoadStateFailed  LoadState = "FAILED"  // nothing was swapped in
)

// String returns the string representation of the load state.
func (s LoadState) String() string {
	return string(s)
}

// Served reports whether the load replaced the repository contents.
func (s LoadState) Served() bool {
	return s == LoadStateSuccess || s == LoadStatePartial
}

// FailureKind classifies why a listing entry was rejected.
type FailureKind string

const (
	FailureConfiguration FailureKind = "configuration"
	FailureResource      FailureKind = "resource"
	FailureDecode        FailureKind = "decode"
	FailureFragment      FailureKind = "fragment"
	FailureCycle         FailureKind = "cycle"
	FailureUnknown       FailureKind = "unknown_resource"
	FailureDuplicate     FailureKind = "duplicate"
	FailureValidation    FailureKind = "validation"
	FailureOther         FailureKind = "other"
)

// LoadFailure records one listing entry that could not be loaded.
type LoadFailure struct {
	Position   int          `json:"position"`
	Identifier string       `json:"identifier,omitempty"`
	Kind       FailureKind  `json:"kind"`
	Message    string       `json:"message"`
	Details    []FieldError `json:"details,omitempty"`
}

// LoadRun summarizes one repository load.
type LoadRun struct {
	ID         string        `json:"id"`
	Listing    string        `json:"listing"`
	Policy     string        `json:"policy"`
	State      LoadState     `json:"state"`
	Entries    int           `json:"entries"`
	Loaded     int           `json:"loaded"`
	Failures   []LoadFailure `json:"failures,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Duration returns how long the load took.
func (r *LoadRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
