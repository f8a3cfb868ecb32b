// Package rpcerr classifies pipeline outcomes into the status kinds
// spec.md §7 defines, wrapping the teacher's error-boundary library
// (github.com/openimsdk/tools/errs) the way every responder-side
// component surfaces errors to its caller.
package rpcerr

import (
	"errors"

	"github.com/openimsdk/tools/errs"
)

// Status is one of spec.md §7's error kinds.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusInvalidInput
	StatusBackendUnavailable
	StatusRefreshFailed
	StatusExternalSource
	StatusFatal
)

var codes = map[Status]int{
	StatusOK:                 0,
	StatusNotFound:           1001,
	StatusInvalidInput:       1002,
	StatusBackendUnavailable: 1003,
	StatusRefreshFailed:      1004,
	StatusExternalSource:     1005,
	StatusFatal:              1006,
}

// codedError pins a Status to an errs-wrapped error without needing
// errs itself to carry responder-specific codes.
type codedError struct {
	status Status
	err    error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// New builds an errs-wrapped error carrying status, the way the
// teacher's RPC handlers build every error they return, plus the kv
// pairs errs.New logs as structured detail.
func New(status Status, msg string, kv ...any) error {
	return &codedError{status: status, err: errs.New(msg, kv...).Wrap()}
}

// Wrap attaches status to an existing error, for call sites that
// already received an error from sysdb, shmcache, or the provider
// adapter and just need it classified.
func Wrap(status Status, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{status: status, err: err}
}

// StatusOf recovers the Status attached by New or Wrap, defaulting to
// StatusFatal for errors this package never classified.
func StatusOf(err error) Status {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.status
	}
	return StatusFatal
}

// Code returns status's stable numeric wire code.
func Code(status Status) int { return codes[status] }

// IsConnectionFatal reports whether status closes the connection
// (spec.md §7: only "fatal" and transport errors do).
func IsConnectionFatal(status Status) bool { return status == StatusFatal }
