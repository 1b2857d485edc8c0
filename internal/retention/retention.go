// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package retention enforces each station's per-key measurement quota:
// once a station has accumulated more than max_measures rows, its
// oldest rows — provided they are old enough not to disturb jobs
// scanning recent data — are deleted and its counters adjusted to
// match.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// candidate is a station over its quota, as reported by a join's
// CandidatesOverQuota step.
type candidate struct {
	key           any
	totalMeasures int64
	newMeasures   int64
}

// join is the per-kind join strategy the generic trimmer needs: where
// the original relied on a lambda predicate to match a measurement row
// to its owning station, here cellJoin and wifiJoin each bind the
// trimmer's five generic steps to the right repository methods and key
// type.
type join interface {
	CandidatesOverQuota(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, maxMeasures int64, batch int) ([]candidate, error)
	CountOld(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, minAgeDays int) (int64, error)
	CutoffRow(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, minAgeDays int, offset int64) (time.Time, int64, error)
	DeleteBefore(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, minAgeDays int, keepTime time.Time, keepID int64) (int64, error)
	UpdateCounters(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, total, new int64) error
}

// Trimmer is component E, the retention trimmer, parameterized by
// measure kind through its join strategy.
type Trimmer struct {
	repo        *repository.Repository
	measureType schema.MeasureType
	join        join
}

// NewCellTrimmer builds a Trimmer over cell stations and cell_measure.
func NewCellTrimmer(repo *repository.Repository) *Trimmer {
	return &Trimmer{repo: repo, measureType: schema.MeasureTypeCell, join: cellJoin{}}
}

// NewWifiTrimmer builds a Trimmer over Wi-Fi access points and wifi_measure.
func NewWifiTrimmer(repo *repository.Repository) *Trimmer {
	return &Trimmer{repo: repo, measureType: schema.MeasureTypeWifi, join: wifiJoin{}}
}

// MeasureType identifies which measurement kind this Trimmer trims,
// for metrics labelling by callers.
func (t *Trimmer) MeasureType() schema.MeasureType { return t.measureType }

// Run applies one trimming pass over up to batch over-quota stations.
// For each: it refines the quota check against only rows at least
// minAgeDays old (so a burst of very recent inserts cannot itself
// trigger a trim), finds the row that marks the boundary between "keep"
// and "delete" in (time, id) order, deletes everything older, and
// clamps the station's counters to match. It returns the total number
// of measurement rows deleted.
func (t *Trimmer) Run(ctx context.Context, tx *repository.Transaction, maxMeasures int64, minAgeDays, batch int) (int64, error) {
	candidates, err := t.join.CandidatesOverQuota(ctx, tx, t.repo, maxMeasures, batch)
	if err != nil {
		return 0, fmt.Errorf("list over-quota %s stations: %w", t.measureType, err)
	}

	var total int64
	for _, c := range candidates {
		oldCount, err := t.join.CountOld(ctx, tx, t.repo, c.key, minAgeDays)
		if err != nil {
			return total, fmt.Errorf("count old %s measures: %w", t.measureType, err)
		}
		if oldCount <= maxMeasures {
			continue
		}

		offset := oldCount - maxMeasures
		keepTime, keepID, err := t.join.CutoffRow(ctx, tx, t.repo, c.key, minAgeDays, offset)
		if err != nil {
			return total, fmt.Errorf("find %s cutoff row: %w", t.measureType, err)
		}

		deleted, err := t.join.DeleteBefore(ctx, tx, t.repo, c.key, minAgeDays, keepTime, keepID)
		if err != nil {
			return total, fmt.Errorf("delete old %s measures: %w", t.measureType, err)
		}
		total += deleted

		newTotal := c.totalMeasures - deleted
		newNew := c.newMeasures
		if newNew > newTotal {
			newNew = newTotal
		}
		if err := t.join.UpdateCounters(ctx, tx, t.repo, c.key, newTotal, newNew); err != nil {
			return total, fmt.Errorf("update %s counters: %w", t.measureType, err)
		}
	}
	return total, nil
}
