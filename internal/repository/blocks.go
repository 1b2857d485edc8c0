// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ichnaea-go/locationd/pkg/schema"
)

// measureTableFor maps a MeasureType to its backing SQL table name.
func measureTableFor(mt schema.MeasureType) string {
	if mt == schema.MeasureTypeCell {
		return "cell_measure"
	}
	return "wifi_measure"
}

// MaxMeasureID returns the highest id currently present in the
// measurement table for mt, or 0 if the table is empty.
func (r *Repository) MaxMeasureID(ctx context.Context, tx *Transaction, mt schema.MeasureType) (int64, error) {
	query, args, err := psql.Select("COALESCE(MAX(id), 0)").From(measureTableFor(mt)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build MaxMeasureID query: %w", err)
	}
	var maxID int64
	if err := r.handle(tx).Get(&maxID, query, args...); err != nil {
		return 0, err
	}
	return maxID, nil
}

// MinMeasureID returns the lowest id currently present in the
// measurement table for mt, or 0 if the table is empty. Used to seed
// the planner's starting id the first time a measure type is ever
// archived, when no block yet exists to resume from.
func (r *Repository) MinMeasureID(ctx context.Context, tx *Transaction, mt schema.MeasureType) (int64, error) {
	query, args, err := psql.Select("COALESCE(MIN(id), 0)").From(measureTableFor(mt)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build MinMeasureID query: %w", err)
	}
	var minID int64
	if err := r.handle(tx).Get(&minID, query, args...); err != nil {
		return 0, err
	}
	return minID, nil
}

// MaxArchivedID returns the end id of the most recently planned block
// for mt, or 0 if no block has ever been planned.
func (r *Repository) MaxArchivedID(ctx context.Context, tx *Transaction, mt schema.MeasureType) (int64, error) {
	query, args, err := psql.Select("COALESCE(MAX(end_id), 0)").
		From("measure_block").
		Where(sq.Eq{"measure_type": mt}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build MaxArchivedID query: %w", err)
	}
	var maxID int64
	if err := r.handle(tx).Get(&maxID, query, args...); err != nil {
		return 0, err
	}
	return maxID, nil
}

// NewestRowAgeDays returns how many days (fractional) old the newest
// row of mt within [startID, endID) is, or 0 if the range holds no
// rows, used to gate a block from being planned until it has stopped
// actively filling.
func (r *Repository) NewestRowAgeDays(ctx context.Context, tx *Transaction, mt schema.MeasureType, startID, endID int64) (float64, error) {
	query, args, err := psql.Select("COALESCE(EXTRACT(EPOCH FROM (now() - MAX(created))) / 86400, 0)").
		From(measureTableFor(mt)).
		Where(sq.GtOrEq{"id": startID}).
		Where(sq.Lt{"id": endID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build NewestRowAgeDays query: %w", err)
	}
	var ageDays float64
	if err := r.handle(tx).Get(&ageDays, query, args...); err != nil {
		return 0, err
	}
	return ageDays, nil
}

// CreateBlock plans a new archive block for the half-open id range
// [startID, endID).
func (r *Repository) CreateBlock(ctx context.Context, tx *Transaction, mt schema.MeasureType, startID, endID int64) (*schema.MeasureBlock, error) {
	query, args, err := psql.Insert("measure_block").
		Columns("measure_type", "start_id", "end_id").
		Values(mt, startID, endID).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build CreateBlock query: %w", err)
	}
	b := &schema.MeasureBlock{MeasureType: mt, StartID: startID, EndID: endID}
	if err := r.handle(tx).QueryRowx(query, args...).Scan(&b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// ListAwaitingWrite returns every planned block that has not yet been
// uploaded to the object store.
func (r *Repository) ListAwaitingWrite(ctx context.Context, tx *Transaction, mt schema.MeasureType) ([]*schema.MeasureBlock, error) {
	query, args, err := psql.Select("id", "measure_type", "start_id", "end_id", "s3_key", "archive_sha", "archive_date").
		From("measure_block").
		Where(sq.Eq{"measure_type": mt}).
		Where("s3_key IS NULL").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListAwaitingWrite query: %w", err)
	}
	var blocks []*schema.MeasureBlock
	if err := r.handle(tx).Select(&blocks, query, args...); err != nil {
		return nil, err
	}
	return blocks, nil
}

// ListAwaitingReap returns every uploaded block whose source rows have
// not yet been verified and deleted.
func (r *Repository) ListAwaitingReap(ctx context.Context, tx *Transaction, mt schema.MeasureType) ([]*schema.MeasureBlock, error) {
	query, args, err := psql.Select("id", "measure_type", "start_id", "end_id", "s3_key", "archive_sha", "archive_date").
		From("measure_block").
		Where(sq.Eq{"measure_type": mt}).
		Where("s3_key IS NOT NULL AND archive_date IS NULL").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListAwaitingReap query: %w", err)
	}
	var blocks []*schema.MeasureBlock
	if err := r.handle(tx).Select(&blocks, query, args...); err != nil {
		return nil, err
	}
	return blocks, nil
}

// MarkUploaded records that block has been written to s3Key with the
// given SHA1 content hash.
func (r *Repository) MarkUploaded(ctx context.Context, tx *Transaction, blockID int64, s3Key, sha1Hex string) error {
	query, args, err := psql.Update("measure_block").
		Set("s3_key", s3Key).
		Set("archive_sha", sha1Hex).
		Where(sq.Eq{"id": blockID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build MarkUploaded query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}

// MarkReaped records that block's source rows have been verified
// against the archive and deleted.
func (r *Repository) MarkReaped(ctx context.Context, tx *Transaction, blockID int64) error {
	query, args, err := psql.Update("measure_block").
		Set("archive_date", sq.Expr("now()")).
		Where(sq.Eq{"id": blockID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build MarkReaped query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}

// FetchMeasureRange fetches every row of mt's measurement table within
// [startID, endID), for the archive writer to serialize into CSV.
func (r *Repository) FetchMeasureRange(ctx context.Context, tx *Transaction, mt schema.MeasureType, startID, endID int64) (interface{}, error) {
	if mt == schema.MeasureTypeCell {
		query, args, err := psql.Select("id", "radio", "mcc", "mnc", "lac", "cid", "lat", "lon", "time", "created").
			From("cell_measure").
			Where(sq.GtOrEq{"id": startID}).
			Where(sq.Lt{"id": endID}).
			OrderBy("id").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build FetchMeasureRange query: %w", err)
		}
		var rows []schema.CellMeasure
		if err := r.handle(tx).Select(&rows, query, args...); err != nil {
			return nil, err
		}
		return rows, nil
	}

	query, args, err := psql.Select("id", "key", "lat", "lon", "time", "created").
		From("wifi_measure").
		Where(sq.GtOrEq{"id": startID}).
		Where(sq.Lt{"id": endID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build FetchMeasureRange query: %w", err)
	}
	var rows []schema.WifiMeasure
	if err := r.handle(tx).Select(&rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteMeasureRange deletes every row of mt's measurement table
// within [startID, endID) — the bounded range the reaper uses instead
// of the original unbounded-filter delete.
func (r *Repository) DeleteMeasureRange(ctx context.Context, tx *Transaction, mt schema.MeasureType, startID, endID int64) error {
	query, args, err := psql.Delete(measureTableFor(mt)).
		Where(sq.GtOrEq{"id": startID}).
		Where(sq.Lt{"id": endID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build DeleteMeasureRange query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}
