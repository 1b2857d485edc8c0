// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskrunner is the middleware every scheduled job runs
// through: it opens exactly one database session per attempt, commits
// it once on success, and classifies the returned error to decide
// whether to retry, swallow, or give up and report it.
package taskrunner

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ichnaea-go/locationd/internal/metrics"
	"github.com/ichnaea-go/locationd/internal/taskerr"
	"github.com/ichnaea-go/locationd/pkg/log"
)

// MaxAttempts bounds how many times a Transient error is retried
// before the task is given up on for this run.
const MaxAttempts = 3

// Session is the transactional handle a Task receives. It is opened
// fresh for every attempt and must be committed exactly once on
// success; an unfinished Session is rolled back by the caller.
type Session interface {
	Commit() error
	Rollback() error
}

// Opener opens one new Session for a single task attempt.
type Opener func(ctx context.Context) (Session, error)

// Task is the unit of work a scheduled job runs. It must use sess for
// all its reads and writes so a retried attempt starts from a clean
// transaction.
type Task func(ctx context.Context, sess Session) error

// Run executes task under name, retrying Transient failures up to
// MaxAttempts times with exponential backoff, swallowing Conflict failures
// as a no-op run, and returning Programming failures (and anything
// else unclassified) immediately without retrying.
func Run(ctx context.Context, name string, open Opener, task Task) error {
	timer := prometheus.NewTimer(metrics.TaskDuration.WithLabelValues(name))
	defer timer.ObserveDuration()

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		lastErr = attemptOnce(ctx, open, task)
		if lastErr == nil {
			metrics.TaskRuns.WithLabelValues(name, "success").Inc()
			return nil
		}

		if taskerr.IsConflict(lastErr) {
			log.Debugf("task %s: conflict on attempt %d, treating run as a no-op: %v", name, attempt, lastErr)
			metrics.TaskRuns.WithLabelValues(name, "conflict").Inc()
			return nil
		}

		if !taskerr.IsTransient(lastErr) {
			log.Errorf("task %s: %v", name, lastErr)
			metrics.TaskRuns.WithLabelValues(name, "error").Inc()
			return lastErr
		}

		log.Warnf("task %s: transient error on attempt %d/%d: %v", name, attempt, MaxAttempts, lastErr)
		if attempt < MaxAttempts {
			time.Sleep(backoff(attempt))
		}
	}

	metrics.TaskRuns.WithLabelValues(name, "error").Inc()
	return lastErr
}

func attemptOnce(ctx context.Context, open Opener, task Task) error {
	sess, err := open(ctx)
	if err != nil {
		return taskerr.NewTransient(err)
	}

	if err := task(ctx, sess); err != nil {
		_ = sess.Rollback()
		return err
	}

	if err := sess.Commit(); err != nil {
		return taskerr.NewTransient(err)
	}
	return nil
}

// backoffUnit scales the exponential backoff between retries; tests
// shrink it to keep the suite fast.
var backoffUnit = time.Second

func backoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * backoffUnit
}
