package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSlotTaken         = errors.New("slot is already booked")
	ErrAlreadyCanceled   = errors.New("booking is already canceled")
	ErrNotFound          = errors.New("not found")
	ErrSlotNotActionable = errors.New("slot is not actionable")
	ErrClosedDay         = errors.New("day is closed")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrRateLimited       = errors.New("too many attempts")
)

// StoreError wraps a network or backend failure of a single store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStore turns err into a *StoreError unless it is nil or already a
// recognizable domain sentinel.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrSlotTaken, ErrAlreadyCanceled, ErrNotFound} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// InvalidRangeError reports malformed admin block-range input.
type InvalidRangeError struct {
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return "invalid range: " + e.Reason
}

// AuthError reports a failed sign-in.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "authentication failed"
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func IsInvalidRange(err error) bool {
	var ie *InvalidRangeError
	return errors.As(err, &ie)
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
