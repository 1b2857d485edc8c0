// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler registers and runs locationd's periodic
// background jobs: position aggregation, LAC recomputation, retention
// trimming, and archival.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/ichnaea-go/locationd/internal/archival"
	"github.com/ichnaea-go/locationd/internal/config"
	"github.com/ichnaea-go/locationd/internal/lac"
	"github.com/ichnaea-go/locationd/internal/metrics"
	"github.com/ichnaea-go/locationd/internal/objectstore"
	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/internal/retention"
	"github.com/ichnaea-go/locationd/internal/station"
	"github.com/ichnaea-go/locationd/internal/taskrunner"
	"github.com/ichnaea-go/locationd/pkg/log"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

var s gocron.Scheduler

// openSession adapts repository.OpenSession to the taskrunner.Opener
// shape: OpenSession's concrete *repository.Transaction return isn't
// directly assignable to a func returning taskrunner.Session, since Go
// function types aren't covariant.
func openSession(ctx context.Context) (taskrunner.Session, error) {
	return repository.OpenSession(ctx)
}

// asTx recovers the concrete transaction a Task was handed, for
// repository calls that need it directly.
func asTx(sess taskrunner.Session) *repository.Transaction {
	return sess.(*repository.Transaction)
}

// parseDuration wraps time.ParseDuration so callers get a consistent
// warning for the zero-interval edge case.
func parseDuration(s string) (time.Duration, error) {
	interval, err := time.ParseDuration(s)
	if err != nil {
		log.Warnf("scheduler: could not parse duration %q: %v", s, err)
		return 0, err
	}
	if interval == 0 {
		log.Warn("scheduler: interval is zero, job will run continuously")
	}
	return interval, nil
}

func parseInterval(name, raw string) time.Duration {
	d, err := parseDuration(raw)
	if err != nil {
		log.Fatalf("scheduler: invalid interval %q for %s: %v", raw, name, err)
	}
	return d
}

// Start builds the scheduler, registers every job from cfg, and
// begins running them. The repo and store it closes over are shared
// by every job's task body.
func Start(cfg config.ProgramConfig, repo *repository.Repository, store objectstore.Store) {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		log.Fatalf("scheduler: could not create gocron scheduler: %v", err)
	}

	registerPositionSync(cfg, repo)
	registerLACSync(cfg, repo)
	registerRetention(cfg, repo)
	registerArchival(cfg, repo, store)

	s.Start()
}

// Shutdown stops the scheduler, letting any in-flight job finish.
func Shutdown() {
	if s != nil {
		_ = s.Shutdown()
	}
}

func registerPositionSync(cfg config.ProgramConfig, repo *repository.Repository) {
	interval := parseInterval("position_sync", cfg.PositionSyncInterval)
	updater := station.NewUpdater(repo)
	pu := cfg.PositionUpdate

	log.Info("scheduler: registering position sync job")
	_, err := s.NewJob(gocron.DurationJob(interval), gocron.NewTask(
		func() {
			ctx := context.Background()
			if err := taskrunner.Run(ctx, "position_sync_cell", openSession, func(ctx context.Context, sess taskrunner.Session) error {
				processed, moving, err := updater.RunCellBatch(ctx, asTx(sess), pu.MinNew, pu.MaxNew, pu.Batch)
				if err != nil {
					return fmt.Errorf("run cell batch: %w", err)
				}
				log.Infof("position sync: %d cells processed, %d blacklisted", processed, moving)
				return nil
			}); err != nil {
				log.Errorf("position sync (cell) failed: %v", err)
			}

			if err := taskrunner.Run(ctx, "position_sync_wifi", openSession, func(ctx context.Context, sess taskrunner.Session) error {
				processed, moving, err := updater.RunWifiBatch(ctx, asTx(sess), pu.MinNew, pu.MaxNew, pu.Batch)
				if err != nil {
					return fmt.Errorf("run wifi batch: %w", err)
				}
				log.Infof("position sync: %d wifis processed, %d blacklisted", processed, moving)
				return nil
			}); err != nil {
				log.Errorf("position sync (wifi) failed: %v", err)
			}
		}))
	if err != nil {
		log.Fatalf("scheduler: register position sync job: %v", err)
	}
}

func registerLACSync(cfg config.ProgramConfig, repo *repository.Repository) {
	interval := parseInterval("lac_sync", cfg.LACSyncInterval)
	scanner := lac.NewScanner(repo)
	batch := cfg.LACScanBatch

	log.Info("scheduler: registering LAC sync job")
	_, err := s.NewJob(gocron.DurationJob(interval), gocron.NewTask(
		func() {
			ctx := context.Background()
			if err := taskrunner.Run(ctx, "lac_sync", openSession, func(ctx context.Context, sess taskrunner.Session) error {
				enqueued, err := scanner.ScanLACs(ctx, asTx(sess), batch)
				if err != nil {
					return fmt.Errorf("scan LACs: %w", err)
				}
				log.Infof("LAC sync: %d location areas recomputed", enqueued)
				return nil
			}); err != nil {
				log.Errorf("LAC sync failed: %v", err)
			}
		}))
	if err != nil {
		log.Fatalf("scheduler: register LAC sync job: %v", err)
	}
}

func registerRetention(cfg config.ProgramConfig, repo *repository.Repository) {
	interval := parseInterval("retention", cfg.RetentionInterval)
	cellTrimmer := retention.NewCellTrimmer(repo)
	wifiTrimmer := retention.NewWifiTrimmer(repo)

	log.Info("scheduler: registering retention job")
	_, err := s.NewJob(gocron.DurationJob(interval), gocron.NewTask(
		func() {
			ctx := context.Background()
			if err := taskrunner.Run(ctx, "retention_cell", openSession, func(ctx context.Context, sess taskrunner.Session) error {
				rc := cfg.CellRetention
				n, err := cellTrimmer.Run(ctx, asTx(sess), rc.MaxMeasures, rc.MinAgeDays, rc.Batch)
				if err != nil {
					return fmt.Errorf("trim cell measures: %w", err)
				}
				metrics.MeasuresDropped.WithLabelValues(string(schema.MeasureTypeCell)).Add(float64(n))
				return nil
			}); err != nil {
				log.Errorf("retention (cell) failed: %v", err)
			}

			if err := taskrunner.Run(ctx, "retention_wifi", openSession, func(ctx context.Context, sess taskrunner.Session) error {
				rc := cfg.WifiRetention
				n, err := wifiTrimmer.Run(ctx, asTx(sess), rc.MaxMeasures, rc.MinAgeDays, rc.Batch)
				if err != nil {
					return fmt.Errorf("trim wifi measures: %w", err)
				}
				metrics.MeasuresDropped.WithLabelValues(string(schema.MeasureTypeWifi)).Add(float64(n))
				return nil
			}); err != nil {
				log.Errorf("retention (wifi) failed: %v", err)
			}
		}))
	if err != nil {
		log.Fatalf("scheduler: register retention job: %v", err)
	}
}

func registerArchival(cfg config.ProgramConfig, repo *repository.Repository, store objectstore.Store) {
	interval := parseInterval("archival", cfg.ArchivalInterval)
	planner := archival.NewPlanner(repo, cfg.Archival.BlockSize, float64(cfg.Archival.MinAgeDays))
	writer := archival.NewWriter(repo, store)
	reaper := archival.NewReaper(repo, store)

	log.Info("scheduler: registering archival job")
	_, err := s.NewJob(gocron.DurationJob(interval), gocron.NewTask(
		func() {
			ctx := context.Background()
			now := time.Now()
			for _, mt := range []schema.MeasureType{schema.MeasureTypeCell, schema.MeasureTypeWifi} {
				if err := taskrunner.Run(ctx, "archival_plan_"+string(mt), openSession, func(ctx context.Context, sess taskrunner.Session) error {
					blocks, err := planner.Plan(ctx, asTx(sess), mt)
					if err != nil {
						return fmt.Errorf("plan %s blocks: %w", mt, err)
					}
					log.Infof("archival: planned %d %s blocks", len(blocks), mt)
					return nil
				}); err != nil {
					log.Errorf("archival plan (%s) failed: %v", mt, err)
				}

				if err := taskrunner.Run(ctx, "archival_write_"+string(mt), openSession, func(ctx context.Context, sess taskrunner.Session) error {
					written, err := writer.WriteAll(ctx, asTx(sess), mt, now)
					if err != nil {
						return fmt.Errorf("write %s blocks: %w", mt, err)
					}
					metrics.ArchiveBlocksWritten.WithLabelValues(string(mt)).Add(float64(written))
					return nil
				}); err != nil {
					log.Errorf("archival write (%s) failed: %v", mt, err)
				}

				if err := taskrunner.Run(ctx, "archival_reap_"+string(mt), openSession, func(ctx context.Context, sess taskrunner.Session) error {
					reaped, err := reaper.ReapAll(ctx, asTx(sess), mt)
					if err != nil {
						return fmt.Errorf("reap %s blocks: %w", mt, err)
					}
					metrics.ArchiveBlocksReaped.WithLabelValues(string(mt)).Add(float64(reaped))
					return nil
				}); err != nil {
					log.Errorf("archival reap (%s) failed: %v", mt, err)
				}
			}
		}))
	if err != nil {
		log.Fatalf("scheduler: register archival job: %v", err)
	}
}
