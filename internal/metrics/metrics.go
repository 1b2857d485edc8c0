// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the Prometheus counters and histograms the
// scheduled jobs update as they run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaskDuration tracks wall-clock time per scheduled task run.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "locationd_task_duration_seconds",
			Help:    "Duration of a scheduled task run in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// TaskRuns counts completed task runs by outcome.
	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationd_task_runs_total",
			Help: "Total number of scheduled task runs",
		},
		[]string{"task", "outcome"},
	)

	// StationsBlacklisted counts stations dropped for moving too far
	// between their min and max observed positions.
	StationsBlacklisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationd_items_blacklisted_total",
			Help: "Total number of stations blacklisted for excessive movement",
		},
		[]string{"station_type"},
	)

	// MeasuresDropped counts raw measurement rows discarded by
	// retention without ever being archived.
	MeasuresDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationd_items_dropped_total",
			Help: "Total number of measurement rows dropped by retention",
		},
		[]string{"measure_type"},
	)

	// ArchiveBlocksWritten counts measurement blocks successfully
	// uploaded to the object store.
	ArchiveBlocksWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationd_s3_backup_blocks_total",
			Help: "Total number of measurement blocks uploaded to the archive",
		},
		[]string{"measure_type"},
	)

	// ArchiveBlocksReaped counts measurement blocks whose source rows
	// have been verified and deleted after a successful upload.
	ArchiveBlocksReaped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationd_s3_backup_reaped_total",
			Help: "Total number of archived blocks reaped from the source tables",
		},
		[]string{"measure_type"},
	)
)
