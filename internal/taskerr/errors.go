// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskerr classifies the errors a scheduled job can return so
// the task runner middleware knows whether to retry, swallow, or just
// report them.
package taskerr

import (
	"errors"
	"fmt"
)

// Conflict marks an error caused by another task racing for the same
// rows (a unique-violation on insert, a lock-not-available). The task
// runner swallows it and counts the run as having processed zero rows,
// since the next scheduled run will pick the work back up.
type Conflict struct {
	Err error
}

func (e *Conflict) Error() string { return fmt.Sprintf("conflict: %v", e.Err) }
func (e *Conflict) Unwrap() error { return e.Err }

// NewConflict wraps err as a Conflict.
func NewConflict(err error) error { return &Conflict{Err: err} }

// Transient marks an error likely to succeed on retry: a dropped
// connection, a timed-out upload, a DNS hiccup. The task runner
// retries up to a fixed number of attempts with backoff.
type Transient struct {
	Err error
}

func (e *Transient) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *Transient) Unwrap() error { return e.Err }

// NewTransient wraps err as a Transient.
func NewTransient(err error) error { return &Transient{Err: err} }

// Programming marks a bug: a malformed query, a violated invariant, a
// nil that should never be nil. The task runner reports it and does
// not retry, since retrying would just fail the same way again.
type Programming struct {
	Err error
}

func (e *Programming) Error() string { return fmt.Sprintf("programming error: %v", e.Err) }
func (e *Programming) Unwrap() error { return e.Err }

// NewProgramming wraps err as a Programming error.
func NewProgramming(err error) error { return &Programming{Err: err} }

// IsConflict reports whether err (or anything it wraps) is a Conflict.
func IsConflict(err error) bool {
	var c *Conflict
	return errors.As(err, &c)
}

// IsTransient reports whether err (or anything it wraps) is a Transient error.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}
