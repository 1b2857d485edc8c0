// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package archival

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/ichnaea-go/locationd/internal/objectstore"
	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// Reaper verifies an uploaded block's archive against its recorded
// hash before deleting the source rows it was carved from.
type Reaper struct {
	repo  *repository.Repository
	store objectstore.Store
}

// NewReaper builds a Reaper that reads back archives through store.
func NewReaper(repo *repository.Repository, store objectstore.Store) *Reaper {
	return &Reaper{repo: repo, store: store}
}

// ReapAll verifies and deletes the source rows of every mt block
// already uploaded but not yet reaped, and returns how many it
// completed. A block whose archive fails verification is left alone
// so a later run can retry it; ReapAll continues on to the rest.
func (r *Reaper) ReapAll(ctx context.Context, tx *repository.Transaction, mt schema.MeasureType) (int, error) {
	blocks, err := r.repo.ListAwaitingReap(ctx, tx, mt)
	if err != nil {
		return 0, fmt.Errorf("list blocks awaiting reap: %w", err)
	}

	reaped := 0
	for _, block := range blocks {
		ok, err := r.verify(ctx, block)
		if err != nil {
			return reaped, fmt.Errorf("verify block %d: %w", block.ID, err)
		}
		if !ok {
			continue
		}

		if err := r.repo.DeleteMeasureRange(ctx, tx, block.MeasureType, block.StartID, block.EndID); err != nil {
			return reaped, fmt.Errorf("delete rows for block %d: %w", block.ID, err)
		}
		if err := r.repo.MarkReaped(ctx, tx, block.ID); err != nil {
			return reaped, fmt.Errorf("mark block %d reaped: %w", block.ID, err)
		}
		reaped++
	}
	return reaped, nil
}

func (r *Reaper) verify(ctx context.Context, block *schema.MeasureBlock) (bool, error) {
	if !block.S3Key.Valid || !block.ArchiveSHA.Valid {
		return false, nil
	}

	data, err := r.store.Get(ctx, block.S3Key.String)
	if err != nil {
		return false, err
	}

	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]) == block.ArchiveSHA.String, nil
}
