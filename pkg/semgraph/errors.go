package semgraph

import (
	"errors"
	"fmt"
)

// Error taxonomy. Failures below batch scope (validation, rule
// conflicts) are recorded per node and the batch continues; failures
// at build scope (consistency, capacity, exhausted IO retries) abort
// the run and leave previously committed artifacts untouched.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrValidation       = errors.New("validation failed")
	ErrRuleConflict     = errors.New("rule conflict")
	ErrConsistency      = errors.New("graph consistency violated")
	ErrCapacityExceeded = errors.New("symbol space exhausted")
	ErrNotFound         = errors.New("not found")
	ErrCodecMismatch    = fmt.Errorf("%w: codec mismatch", ErrIO)
)

// ErrIO wraps storage and compression failures. Transient IO errors
// are retried with bounded backoff; exhaustion is fatal.
var ErrIO = errors.New("io failure")

// Process exit codes, one per failure class, so orchestration scripts
// can branch on what went wrong.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitValidation  = 2
	ExitConsistency = 3
	ExitIO          = 4
	ExitCapacity    = 5
)

// ExitCode maps an error to its process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCapacityExceeded):
		return ExitCapacity
	case errors.Is(err, ErrConsistency):
		return ExitConsistency
	case errors.Is(err, ErrValidation), errors.Is(err, ErrRuleConflict):
		return ExitValidation
	case errors.Is(err, ErrIO):
		return ExitIO
	}
	return ExitError
}
