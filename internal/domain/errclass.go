package domain

import (
	"errors"
	"fmt"
)

// ErrClass is the coarse classification the SyncController needs in order to
// decide whether to retry (spec §4.4.1).
type ErrClass int

const (
	ClassUnknown ErrClass = iota
	ClassTransient
	ClassPermanent
)

// ClassifiedError lets a Provider tag an error with its classification
// directly, rather than relying on message-substring sniffing. SyncController
// prefers this tag when present (see Classify in the sync package).
type ClassifiedError struct {
	Class ErrClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a ClassifiedError the SyncController must never retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassPermanent, Err: err}
}

// Transient wraps err as a ClassifiedError the SyncController should retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// Transientf is Transient with fmt.Errorf-style formatting.
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// Permanentf is Permanent with fmt.Errorf-style formatting.
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// ClassOf extracts the ClassifiedError tag from err, if any, walking the
// error chain. Returns ClassUnknown if err carries no tag.
func ClassOf(err error) ErrClass {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}
	return ClassUnknown
}
