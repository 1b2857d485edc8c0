// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package taskrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ichnaea-go/locationd/internal/taskerr"
)

func init() {
	backoffUnit = time.Microsecond
}

type fakeSession struct {
	committed, rolledBack bool
	commitErr             error
}

func (s *fakeSession) Commit() error   { s.committed = true; return s.commitErr }
func (s *fakeSession) Rollback() error { s.rolledBack = true; return nil }

func TestRunCommitsOnSuccess(t *testing.T) {
	var opened []*fakeSession
	open := func(ctx context.Context) (Session, error) {
		s := &fakeSession{}
		opened = append(opened, s)
		return s, nil
	}

	err := Run(context.Background(), "test-task", open, func(ctx context.Context, sess Session) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(opened) != 1 {
		t.Fatalf("expected exactly one session to be opened, got %d", len(opened))
	}
	if !opened[0].committed {
		t.Fatal("expected the session to be committed")
	}
}

func TestRunSwallowsConflict(t *testing.T) {
	attempts := 0
	open := func(ctx context.Context) (Session, error) { return &fakeSession{}, nil }

	err := Run(context.Background(), "test-task", open, func(ctx context.Context, sess Session) error {
		attempts++
		return taskerr.NewConflict(errors.New("unique violation"))
	})
	if err != nil {
		t.Fatalf("expected conflict to be swallowed, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt, got %d", attempts)
	}
}

func TestRunRetriesTransientThenGivesUp(t *testing.T) {
	attempts := 0
	open := func(ctx context.Context) (Session, error) { return &fakeSession{}, nil }

	start := 0
	_ = start
	err := Run(context.Background(), "test-task", open, func(ctx context.Context, sess Session) error {
		attempts++
		return taskerr.NewTransient(errors.New("connection reset"))
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if attempts != MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", MaxAttempts, attempts)
	}
}

func TestRunRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	open := func(ctx context.Context) (Session, error) { return &fakeSession{}, nil }

	err := Run(context.Background(), "test-task", open, func(ctx context.Context, sess Session) error {
		attempts++
		if attempts < 2 {
			return taskerr.NewTransient(errors.New("connection reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRunDoesNotRetryProgrammingError(t *testing.T) {
	attempts := 0
	open := func(ctx context.Context) (Session, error) { return &fakeSession{}, nil }

	err := Run(context.Background(), "test-task", open, func(ctx context.Context, sess Session) error {
		attempts++
		return taskerr.NewProgramming(errors.New("nil pointer reached"))
	})
	if err == nil {
		t.Fatal("expected the programming error to be returned")
	}
	if attempts != 1 {
		t.Fatalf("programming errors must not be retried, got %d attempts", attempts)
	}
}

func TestRunRollsBackOnFailure(t *testing.T) {
	var sess *fakeSession
	open := func(ctx context.Context) (Session, error) {
		sess = &fakeSession{}
		return sess, nil
	}

	_ = Run(context.Background(), "test-task", open, func(ctx context.Context, s Session) error {
		return taskerr.NewProgramming(errors.New("boom"))
	})
	if !sess.rolledBack {
		t.Fatal("expected the session to be rolled back after a failing task")
	}
	if sess.committed {
		t.Fatal("a failed task must never be committed")
	}
}
