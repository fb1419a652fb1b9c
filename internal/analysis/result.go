package analysis

// Status distinguishes a computed value from the expected "nothing to show" states
type Status string

const (
	StatusAvailable        Status = "available"
	StatusInsufficientData Status = "insufficient_data"
	StatusUnavailable      Status = "unavailable"
)

// Result carries an analytics value or the reason it could not be produced.
// Insufficient data and unavailable upstreams are results, not errors.
type Result[T any] struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Value  *T     `json:"value,omitempty"`
}

// Available wraps a computed value
func Available[T any](v T) Result[T] {
	return Result[T]{Status: StatusAvailable, Value: &v}
}

// Insufficient reports that there is not enough history to compute a value
func Insufficient[T any](reason string) Result[T] {
	return Result[T]{Status: StatusInsufficientData, Reason: reason}
}

// Unavailable reports that an upstream source could not be reached or is not linked
func Unavailable[T any](reason string) Result[T] {
	return Result[T]{Status: StatusUnavailable, Reason: reason}
}

// OK reports whether the result holds a value
func (r Result[T]) OK() bool {
	return r.Status == StatusAvailable && r.Value != nil
}
