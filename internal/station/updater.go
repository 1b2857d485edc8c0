// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package station runs the periodic jobs that fold queued
// measurements into cell and Wi-Fi station position estimates,
// blacklisting and removing any station whose measurements disagree
// too much to still be the same physical place. Measurement rows
// themselves are never deleted here — only the archival reaper
// destroys them, once a block has been verified in the object store.
package station

import (
	"context"

	"github.com/ichnaea-go/locationd/internal/aggregator"
	"github.com/ichnaea-go/locationd/internal/metrics"
	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/pkg/log"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// Updater applies queued measurements to the cell and Wi-Fi station
// catalogs, one key at a time, within the caller's transaction.
type Updater struct {
	repo *repository.Repository
}

// NewUpdater builds an Updater against repo.
func NewUpdater(repo *repository.Repository) *Updater {
	return &Updater{repo: repo}
}

// UpdateCell folds key's last new_measures measurement rows into its
// existing station row, giving it a first estimate if it has none. A
// key with no station row has no pending count, so nothing is folded
// and no row is created. It returns true
// if the station was blacklisted and removed for having moved too far,
// per the aggregator's movement check.
func (u *Updater) UpdateCell(ctx context.Context, tx *repository.Transaction, key schema.CellKey) (moved bool, err error) {
	if key.IsMalformed() {
		return false, nil
	}

	blacklisted, err := u.repo.IsCellBlacklisted(ctx, tx, key)
	if err != nil {
		return false, err
	}
	if blacklisted {
		return false, nil
	}

	cell, err := u.repo.GetCell(ctx, tx, key)
	if err != nil {
		cell = &schema.Cell{CellKey: key}
	}

	points, err := u.repo.CellMeasuresFor(ctx, tx, key, cell.NewMeasures)
	if err != nil {
		return false, err
	}
	if len(points) == 0 {
		return false, nil
	}

	return u.foldCell(ctx, tx, cell, points, false)
}

// UpdateCellBackfill folds the measurement rows named by ids into
// key's station estimate. Unlike
// UpdateCell, which tracks an ongoing pending batch through
// new_measures, backfill adds previously-ignored historical rows to a
// station's total_measures without touching new_measures.
func (u *Updater) UpdateCellBackfill(ctx context.Context, tx *repository.Transaction, key schema.CellKey, ids []int64) (moved bool, err error) {
	if key.IsMalformed() || len(ids) == 0 {
		return false, nil
	}

	blacklisted, err := u.repo.IsCellBlacklisted(ctx, tx, key)
	if err != nil {
		return false, err
	}
	if blacklisted {
		return false, nil
	}

	points, err := u.repo.CellMeasuresByIDs(ctx, tx, ids)
	if err != nil {
		return false, err
	}
	if len(points) == 0 {
		return false, nil
	}

	cell, err := u.repo.GetCell(ctx, tx, key)
	if err != nil {
		cell = &schema.Cell{CellKey: key}
	}

	return u.foldCell(ctx, tx, cell, points, true)
}

// foldCell applies points to cell via the aggregator, then either
// blacklists and removes the station (and touches its enclosing LAC so
// the next scan recomputes it without the removed sibling) or upserts
// the new estimate and touches its enclosing LAC to mark it dirty.
func (u *Updater) foldCell(ctx context.Context, tx *repository.Transaction, cell *schema.Cell, points []schema.LatLon, backfill bool) (moved bool, err error) {
	key := cell.CellKey

	if aggregator.Update(cell, points, aggregator.CellMaxDistKM, backfill) {
		log.Infof("cell %+v moved beyond %gkm, blacklisting", key, aggregator.CellMaxDistKM)
		if err := u.repo.BlacklistCell(ctx, tx, key); err != nil {
			return false, err
		}
		if err := u.repo.DeleteCell(ctx, tx, key); err != nil {
			return false, err
		}
		if !key.IsVirtualLAC() {
			if err := u.repo.DeleteLACIfOrphaned(ctx, tx, key.Radio, key.MCC, key.MNC, key.LAC); err != nil {
				return false, err
			}
		}
		metrics.StationsBlacklisted.WithLabelValues("cell").Inc()
		return true, nil
	}

	if err := u.repo.UpsertCell(ctx, tx, cell); err != nil {
		return false, err
	}
	if !key.IsVirtualLAC() {
		if err := u.repo.TouchLAC(ctx, tx, key.Radio, key.MCC, key.MNC, key.LAC); err != nil {
			return false, err
		}
	}
	return false, nil
}

// UpdateWifi is the Wi-Fi equivalent of UpdateCell. Wi-Fi access points
// have no enclosing LAC and no backfill task.
func (u *Updater) UpdateWifi(ctx context.Context, tx *repository.Transaction, key schema.WifiKey) (moved bool, err error) {
	blacklisted, err := u.repo.IsWifiBlacklisted(ctx, tx, key)
	if err != nil {
		return false, err
	}
	if blacklisted {
		return false, nil
	}

	wifi, err := u.repo.GetWifi(ctx, tx, key)
	if err != nil {
		wifi = &schema.Wifi{Key: key}
	}

	points, err := u.repo.WifiMeasuresFor(ctx, tx, key, wifi.NewMeasures)
	if err != nil {
		return false, err
	}
	if len(points) == 0 {
		return false, nil
	}

	if aggregator.Update(wifi, points, aggregator.WifiMaxDistKM, false) {
		log.Infof("wifi %s moved beyond %gkm, blacklisting", key, aggregator.WifiMaxDistKM)
		if err := u.repo.BlacklistWifi(ctx, tx, key); err != nil {
			return false, err
		}
		if err := u.repo.DeleteWifi(ctx, tx, key); err != nil {
			return false, err
		}
		metrics.StationsBlacklisted.WithLabelValues("wifi").Inc()
		return true, nil
	}

	if err := u.repo.UpsertWifi(ctx, tx, wifi); err != nil {
		return false, err
	}
	return false, nil
}

// RunCellBatch runs the live cell_location_update task: it selects up
// to batch cells with minNew <= new_measures < maxNew and folds each
// one's pending measurements into its station estimate.
func (u *Updater) RunCellBatch(ctx context.Context, tx *repository.Transaction, minNew, maxNew int64, batch int) (processed, moving int, err error) {
	keys, err := u.repo.SelectCellsForUpdate(ctx, tx, minNew, maxNew, batch)
	if err != nil {
		return 0, 0, err
	}
	for _, key := range keys {
		moved, err := u.UpdateCell(ctx, tx, key)
		if err != nil {
			return processed, moving, err
		}
		processed++
		if moved {
			moving++
		}
	}
	return processed, moving, nil
}

// RunWifiBatch is the Wi-Fi equivalent of RunCellBatch.
func (u *Updater) RunWifiBatch(ctx context.Context, tx *repository.Transaction, minNew, maxNew int64, batch int) (processed, moving int, err error) {
	keys, err := u.repo.SelectWifisForUpdate(ctx, tx, minNew, maxNew, batch)
	if err != nil {
		return 0, 0, err
	}
	for _, key := range keys {
		moved, err := u.UpdateWifi(ctx, tx, key)
		if err != nil {
			return processed, moving, err
		}
		processed++
		if moved {
			moving++
		}
	}
	return processed, moving, nil
}

// RunCellBackfill runs the backfill_cell_location_update task: each
// entry in measuresByKey names a cell key and the explicit measurement
// ids to fold into it, for a historical reprocessing pass rather than
// the ongoing live pending-batch flow.
func (u *Updater) RunCellBackfill(ctx context.Context, tx *repository.Transaction, measuresByKey map[schema.CellKey][]int64) (processed, moving int, err error) {
	for key, ids := range measuresByKey {
		moved, err := u.UpdateCellBackfill(ctx, tx, key, ids)
		if err != nil {
			return processed, moving, err
		}
		processed++
		if moved {
			moving++
		}
	}
	return processed, moving, nil
}
