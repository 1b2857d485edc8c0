// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package retention

import (
	"context"
	"time"

	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// wifiJoin matches wifi_measure rows to their owning station by the
// single BSSID key column.
type wifiJoin struct{}

func (wifiJoin) CandidatesOverQuota(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, maxMeasures int64, batch int) ([]candidate, error) {
	wifis, err := repo.WifisOverQuota(ctx, tx, maxMeasures, batch)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, len(wifis))
	for i, w := range wifis {
		out[i] = candidate{key: w.Key, totalMeasures: w.TotalMeasures, newMeasures: w.NewMeasures}
	}
	return out, nil
}

func (wifiJoin) CountOld(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, minAgeDays int) (int64, error) {
	return repo.CountOldWifiMeasures(ctx, tx, key.(schema.WifiKey), minAgeDays)
}

func (wifiJoin) CutoffRow(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, minAgeDays int, offset int64) (time.Time, int64, error) {
	return repo.WifiCutoffRow(ctx, tx, key.(schema.WifiKey), minAgeDays, offset)
}

func (wifiJoin) DeleteBefore(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, minAgeDays int, keepTime time.Time, keepID int64) (int64, error) {
	return repo.DeleteWifiMeasuresBefore(ctx, tx, key.(schema.WifiKey), minAgeDays, keepTime, keepID)
}

func (wifiJoin) UpdateCounters(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, total, new int64) error {
	return repo.UpdateWifiCounters(ctx, tx, key.(schema.WifiKey), total, new)
}
