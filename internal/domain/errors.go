package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKey           = errors.New("coin key must set id, name or symbol")
	ErrNotFound             = errors.New("not found")
	ErrAmbiguous            = errors.New("ambiguous coin key")
	ErrInvalidQuantity      = errors.New("qty must be a positive decimal")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrNonPositivePrice     = errors.New("latest price is not positive")
	ErrInvalidRange         = errors.New("end must be after start")
	ErrInvalidGranularity   = errors.New("invalid granularity")
	ErrRewardClaimed        = errors.New("daily reward already claimed")
	ErrPersistence          = errors.New("persistence error")

	// ErrNotImplemented is reserved for operations whose business rule is not settled yet.
	ErrNotImplemented = errors.New("not implemented")
)

// AmbiguousError is returned when a coin key matches more than one instrument.
type AmbiguousError struct {
	Key        CoinKey
	Candidates []CurrencyRecord
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		ids = append(ids, c.ID)
	}
	return fmt.Sprintf("%s: %d candidates [%s]", ErrAmbiguous, len(e.Candidates), strings.Join(ids, ", "))
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// PersistenceError wraps a storage failure opaquely. The cause stays reachable through Unwrap.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Persist wraps err as a PersistenceError for op. Domain errors and nil pass through untouched.
func Persist(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsDomain reports whether err is one of the business outcomes rather than an infrastructure fault.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrInvalidKey, ErrNotFound, ErrAmbiguous, ErrInvalidQuantity, ErrInsufficientFunds,
		ErrInsufficientHoldings, ErrNonPositivePrice, ErrInvalidRange, ErrInvalidGranularity,
		ErrRewardClaimed, ErrNotImplemented,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
