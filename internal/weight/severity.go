package weight

import "errors"

// Severity distinguishes read errors the monitor loop can retry from
// ones that must stop it.
type Severity int

const (
	// Transient errors are reported and retried after a back-off.
	Transient Severity = iota
	// Fatal errors route the loop to shutdown.
	Fatal
)

// ReadError is a classified failure from a single sample cycle.
type ReadError struct {
	Severity Severity
	Err      error
}

func (e *ReadError) Error() string {
	return e.Err.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a retryable read error.
func NewTransient(err error) error {
	return &ReadError{Severity: Transient, Err: err}
}

// NewFatal wraps err as an unrecoverable read error.
func NewFatal(err error) error {
	return &ReadError{Severity: Fatal, Err: err}
}

// SeverityOf classifies err. Anything not explicitly marked fatal is
// transient: a failed sample cycle never terminates the monitor.
func SeverityOf(err error) Severity {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Severity
	}
	return Transient
}
