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

// cellJoin matches cell_measure rows to their owning station by the
// composite (radio, mcc, mnc, lac, cid) key.
type cellJoin struct{}

func (cellJoin) CandidatesOverQuota(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, maxMeasures int64, batch int) ([]candidate, error) {
	cells, err := repo.CellsOverQuota(ctx, tx, maxMeasures, batch)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, len(cells))
	for i, c := range cells {
		out[i] = candidate{key: c.CellKey, totalMeasures: c.TotalMeasures, newMeasures: c.NewMeasures}
	}
	return out, nil
}

func (cellJoin) CountOld(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, minAgeDays int) (int64, error) {
	return repo.CountOldCellMeasures(ctx, tx, key.(schema.CellKey), minAgeDays)
}

func (cellJoin) CutoffRow(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, minAgeDays int, offset int64) (time.Time, int64, error) {
	return repo.CellCutoffRow(ctx, tx, key.(schema.CellKey), minAgeDays, offset)
}

func (cellJoin) DeleteBefore(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, minAgeDays int, keepTime time.Time, keepID int64) (int64, error) {
	return repo.DeleteCellMeasuresBefore(ctx, tx, key.(schema.CellKey), minAgeDays, keepTime, keepID)
}

func (cellJoin) UpdateCounters(ctx context.Context, tx *repository.Transaction, repo *repository.Repository, key any, total, new int64) error {
	return repo.UpdateCellCounters(ctx, tx, key.(schema.CellKey), total, new)
}
