// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package archival plans, writes, and reaps fixed-size archive blocks
// of measurement rows: it carves the measurement id space into
// contiguous ranges, uploads each range as a zipped CSV to an object
// store, and finally deletes the source rows once the upload has been
// verified.
package archival

import (
	"context"
	"fmt"

	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// Planner carves not-yet-archived measurement ids into fixed-size
// blocks once there are enough rows to fill one.
type Planner struct {
	repo       *repository.Repository
	batchSize  int64
	minAgeDays float64
}

// NewPlanner builds a Planner that only plans blocks of batchSize rows
// once every row in the candidate range is at least minAgeDays old, so
// a block is never carved out of a range still actively being written.
func NewPlanner(repo *repository.Repository, batchSize int64, minAgeDays float64) *Planner {
	return &Planner{repo: repo, batchSize: batchSize, minAgeDays: minAgeDays}
}

// Plan carves as many full blocks as currently fit in mt's unarchived
// id range, and returns the blocks it created.
func (p *Planner) Plan(ctx context.Context, tx *repository.Transaction, mt schema.MeasureType) ([]*schema.MeasureBlock, error) {
	maxID, err := p.repo.MaxMeasureID(ctx, tx, mt)
	if err != nil {
		return nil, fmt.Errorf("resolve max measure id: %w", err)
	}
	if maxID == 0 {
		return nil, nil
	}

	archivedEnd, err := p.repo.MaxArchivedID(ctx, tx, mt)
	if err != nil {
		return nil, fmt.Errorf("resolve max archived id: %w", err)
	}

	var minID int64
	if archivedEnd > 0 {
		minID = archivedEnd
	} else {
		minID, err = p.repo.MinMeasureID(ctx, tx, mt)
		if err != nil {
			return nil, fmt.Errorf("resolve min measure id: %w", err)
		}
	}

	var blocks []*schema.MeasureBlock
	for minID+p.batchSize-1 <= maxID {
		endID := minID + p.batchSize

		age, err := p.repo.NewestRowAgeDays(ctx, tx, mt, minID, endID)
		if err != nil {
			return blocks, fmt.Errorf("resolve candidate block age: %w", err)
		}
		if age < p.minAgeDays {
			break
		}

		block, err := p.repo.CreateBlock(ctx, tx, mt, minID, endID)
		if err != nil {
			return blocks, fmt.Errorf("create block [%d,%d): %w", minID, endID, err)
		}
		blocks = append(blocks, block)
		minID = endID
	}
	return blocks, nil
}
