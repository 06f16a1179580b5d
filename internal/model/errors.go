package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a structured, recoverable failure.
type ErrorKind string

const (
	KindInvalidPreferences ErrorKind = "InvalidPreferences"
	KindEmptyProposal      ErrorKind = "EmptyProposal"
	KindNoValidBlocks      ErrorKind = "NoValidBlocks"
	KindNothingToExport    ErrorKind = "NothingToExport"
)

// Sentinels for errors.Is; matching is by kind only.
var (
	ErrInvalidPreferences = &Error{Kind: KindInvalidPreferences}
	ErrEmptyProposal      = &Error{Kind: KindEmptyProposal}
	ErrNoValidBlocks      = &Error{Kind: KindNoValidBlocks}
	ErrNothingToExport    = &Error{Kind: KindNothingToExport}
)

// Error is a request-level failure with enough detail to render a message
// for the end user.
type Error struct {
	Kind     ErrorKind
	Field    string
	Value    string
	Message  string
	Warnings []Warning
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s=%q)", e.Field, e.Value)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a structured error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WarningKind names why a single proposed block was altered or dropped.
type WarningKind string

const (
	WarnUnparseable    WarningKind = "unparseable"
	WarnClipped        WarningKind = "clipped"
	WarnOutOfBounds    WarningKind = "out_of_bounds"
	WarnTruncated      WarningKind = "truncated"
	WarnOverlapDropped WarningKind = "overlap_dropped"
)

// Warning describes a non-fatal change made to one proposed block. Index is
// the block's position in the raw proposal.
type Warning struct {
	Index  int         `json:"index"`
	Kind   WarningKind `json:"kind"`
	Field  string      `json:"field,omitempty"`
	Value  string      `json:"value,omitempty"`
	Reason string      `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("#%d %s: %s", w.Index, w.Kind, w.Reason)
}
