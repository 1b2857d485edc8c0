// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ichnaea-go/locationd/pkg/schema"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// GetCell fetches one physical or virtual-LAC cell row by its key,
// returning sql.ErrNoRows (wrapped) if it does not exist yet.
func (r *Repository) GetCell(ctx context.Context, tx *Transaction, key schema.CellKey) (*schema.Cell, error) {
	query, args, err := psql.Select("id", "radio", "mcc", "mnc", "lac", "cid",
		"lat", "lon", "min_lat", "min_lon", "max_lat", "max_lon",
		"range", "new_measures", "total_measures").
		From("cell").
		Where(sq.Eq{"radio": key.Radio, "mcc": key.MCC, "mnc": key.MNC, "lac": key.LAC, "cid": key.CID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetCell query: %w", err)
	}

	c := &schema.Cell{}
	if err := r.handle(tx).QueryRowx(query, args...).StructScan(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListSiblingCells returns every physical cell sharing the given LAC,
// used to derive the virtual LAC station's position.
func (r *Repository) ListSiblingCells(ctx context.Context, tx *Transaction, radio schema.Radio, mcc, mnc, lac int32) ([]*schema.Cell, error) {
	query, args, err := psql.Select("id", "radio", "mcc", "mnc", "lac", "cid",
		"lat", "lon", "min_lat", "min_lon", "max_lat", "max_lon",
		"range", "new_measures", "total_measures").
		From("cell").
		Where(sq.Eq{"radio": radio, "mcc": mcc, "mnc": mnc, "lac": lac}).
		Where(sq.NotEq{"cid": schema.CellIDLac}).
		Where("lat IS NOT NULL").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListSiblingCells query: %w", err)
	}

	var cells []*schema.Cell
	if err := r.handle(tx).Select(&cells, query, args...); err != nil {
		return nil, err
	}
	return cells, nil
}

// UpsertCell inserts c if its key is new, or updates the position and
// counter columns of the existing row otherwise. It is the Go
// equivalent of the "INSERT ... ON DUPLICATE KEY UPDATE" extension the
// original aggregation jobs relied on.
func (r *Repository) UpsertCell(ctx context.Context, tx *Transaction, c *schema.Cell) error {
	query, args, err := psql.Insert("cell").
		Columns("radio", "mcc", "mnc", "lac", "cid", "lat", "lon",
			"min_lat", "min_lon", "max_lat", "max_lon", "range",
			"new_measures", "total_measures", "modified").
		Values(c.Radio, c.MCC, c.MNC, c.LAC, c.CID, c.Lat, c.Lon,
			c.MinLat, c.MinLon, c.MaxLat, c.MaxLon, c.Range,
			c.NewMeasures, c.TotalMeasures, sq.Expr("now()")).
		Suffix(`ON CONFLICT (radio, mcc, mnc, lac, cid) DO UPDATE SET
			lat = EXCLUDED.lat, lon = EXCLUDED.lon,
			min_lat = EXCLUDED.min_lat, min_lon = EXCLUDED.min_lon,
			max_lat = EXCLUDED.max_lat, max_lon = EXCLUDED.max_lon,
			range = EXCLUDED.range,
			new_measures = EXCLUDED.new_measures,
			total_measures = EXCLUDED.total_measures,
			modified = now()
			RETURNING id`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build UpsertCell query: %w", err)
	}

	return r.handle(tx).QueryRowx(query, args...).Scan(&c.ID)
}

// DeleteCell removes a physical cell row outright. Used by the
// station remover once a cell has been blacklisted for moving too far.
func (r *Repository) DeleteCell(ctx context.Context, tx *Transaction, key schema.CellKey) error {
	query, args, err := psql.Delete("cell").
		Where(sq.Eq{"radio": key.Radio, "mcc": key.MCC, "mnc": key.MNC, "lac": key.LAC, "cid": key.CID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build DeleteCell query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}

// BlacklistCell inserts key into the cell blacklist, ignoring the
// write if it is already present.
func (r *Repository) BlacklistCell(ctx context.Context, tx *Transaction, key schema.CellKey) error {
	query, args, err := psql.Insert("cell_blacklist").
		Columns("radio", "mcc", "mnc", "lac", "cid").
		Values(key.Radio, key.MCC, key.MNC, key.LAC, key.CID).
		Suffix("ON CONFLICT (radio, mcc, mnc, lac, cid) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build BlacklistCell query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}

// IsCellBlacklisted reports whether key has previously been judged to
// be physically moving and so must not be re-admitted as a station.
func (r *Repository) IsCellBlacklisted(ctx context.Context, tx *Transaction, key schema.CellKey) (bool, error) {
	query, args, err := psql.Select("radio", "mcc", "mnc", "lac", "cid", "created").
		From("cell_blacklist").
		Where(sq.Eq{"radio": key.Radio, "mcc": key.MCC, "mnc": key.MNC, "lac": key.LAC, "cid": key.CID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build IsCellBlacklisted query: %w", err)
	}

	var entry schema.CellBlacklist
	err = r.handle(tx).QueryRowx(query, args...).StructScan(&entry)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteLACIfOrphaned removes the virtual LAC station for (radio, mcc,
// mnc, lac) if it no longer has any physical sibling cells, and
// otherwise bumps its new_measures by one so the next LAC scan picks
// it up and recomputes its estimate without its removed sibling.
func (r *Repository) DeleteLACIfOrphaned(ctx context.Context, tx *Transaction, radio schema.Radio, mcc, mnc, lac int32) error {
	siblings, err := r.ListSiblingCells(ctx, tx, radio, mcc, mnc, lac)
	if err != nil {
		return err
	}
	if len(siblings) > 0 {
		return r.TouchLAC(ctx, tx, radio, mcc, mnc, lac)
	}
	return r.DeleteCell(ctx, tx, schema.CellKey{Radio: radio, MCC: mcc, MNC: mnc, LAC: lac, CID: schema.CellIDLac})
}

// TouchLAC marks the virtual LAC station for (radio, mcc, mnc, lac)
// dirty by incrementing its new_measures counter, creating the row
// first if no sibling cell has ever touched it before. The next LAC
// scan recomputes any row with new_measures > 0.
func (r *Repository) TouchLAC(ctx context.Context, tx *Transaction, radio schema.Radio, mcc, mnc, lac int32) error {
	query, args, err := psql.Insert("cell").
		Columns("radio", "mcc", "mnc", "lac", "cid", "new_measures", "total_measures", "modified").
		Values(radio, mcc, mnc, lac, schema.CellIDLac, 1, 0, sq.Expr("now()")).
		Suffix(`ON CONFLICT (radio, mcc, mnc, lac, cid) DO UPDATE SET
			new_measures = cell.new_measures + 1,
			modified = now()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build TouchLAC query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}

// SelectCellsForUpdate returns up to batch physical cell keys with
// minNew <= new_measures < maxNew, the live cell position-update
// task's station-selection step. maxNew bounds each pass so a handful
// of pathological stations with huge pending counts cannot starve
// every other cell of processing.
func (r *Repository) SelectCellsForUpdate(ctx context.Context, tx *Transaction, minNew, maxNew int64, batch int) ([]schema.CellKey, error) {
	query, args, err := psql.Select("radio", "mcc", "mnc", "lac", "cid").
		From("cell").
		Where(sq.NotEq{"cid": schema.CellIDLac}).
		Where(sq.GtOrEq{"new_measures": minNew}).
		Where(sq.Lt{"new_measures": maxNew}).
		OrderBy("modified").
		Limit(uint64(batch)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SelectCellsForUpdate query: %w", err)
	}

	var keys []schema.CellKey
	if err := r.handle(tx).Select(&keys, query, args...); err != nil {
		return nil, err
	}
	return keys, nil
}

// LACsDirty returns up to batch virtual LAC keys with new_measures >
// 0, the LAC deriver's scan step.
func (r *Repository) LACsDirty(ctx context.Context, tx *Transaction, batch int) ([]schema.CellKey, error) {
	query, args, err := psql.Select("radio", "mcc", "mnc", "lac", "cid").
		From("cell").
		Where(sq.Eq{"cid": schema.CellIDLac}).
		Where(sq.Gt{"new_measures": 0}).
		OrderBy("modified").
		Limit(uint64(batch)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build LACsDirty query: %w", err)
	}

	var keys []schema.CellKey
	if err := r.handle(tx).Select(&keys, query, args...); err != nil {
		return nil, err
	}
	return keys, nil
}

// CellsOverQuota returns up to batch physical cells with total_measures
// greater than maxMeasures, the retention trimmer's candidate-selection
// step.
func (r *Repository) CellsOverQuota(ctx context.Context, tx *Transaction, maxMeasures int64, batch int) ([]*schema.Cell, error) {
	query, args, err := psql.Select("id", "radio", "mcc", "mnc", "lac", "cid",
		"lat", "lon", "min_lat", "min_lon", "max_lat", "max_lon",
		"range", "new_measures", "total_measures").
		From("cell").
		Where(sq.NotEq{"cid": schema.CellIDLac}).
		Where(sq.Gt{"total_measures": maxMeasures}).
		OrderBy("total_measures DESC").
		Limit(uint64(batch)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build CellsOverQuota query: %w", err)
	}

	var cells []*schema.Cell
	if err := r.handle(tx).Select(&cells, query, args...); err != nil {
		return nil, err
	}
	return cells, nil
}

// CountOldCellMeasures counts key's cell_measure rows created at least
// minAgeDays ago, the retention trimmer's refine step: a candidate is
// only actually trimmed once enough of its rows are old enough not to
// disturb jobs scanning recent data.
func (r *Repository) CountOldCellMeasures(ctx context.Context, tx *Transaction, key schema.CellKey, minAgeDays int) (int64, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("cell_measure").
		Where(sq.Eq{"radio": key.Radio, "mcc": key.MCC, "mnc": key.MNC, "lac": key.LAC, "cid": key.CID}).
		Where(sq.Expr("created < now() - (? || ' days')::interval", minAgeDays)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build CountOldCellMeasures query: %w", err)
	}

	var count int64
	if err := r.handle(tx).Get(&count, query, args...); err != nil {
		return 0, err
	}
	return count, nil
}

// CellCutoffRow returns the (time, id) of the row at offset within
// key's old-window rows ordered by (time, id) ascending — the boundary
// below which rows are deleted and at or above which they are kept.
func (r *Repository) CellCutoffRow(ctx context.Context, tx *Transaction, key schema.CellKey, minAgeDays int, offset int64) (time.Time, int64, error) {
	query, args, err := psql.Select("time", "id").
		From("cell_measure").
		Where(sq.Eq{"radio": key.Radio, "mcc": key.MCC, "mnc": key.MNC, "lac": key.LAC, "cid": key.CID}).
		Where(sq.Expr("created < now() - (? || ' days')::interval", minAgeDays)).
		OrderBy("time", "id").
		Offset(uint64(offset)).
		Limit(1).
		ToSql()
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("build CellCutoffRow query: %w", err)
	}

	var row struct {
		Time time.Time `db:"time"`
		ID   int64     `db:"id"`
	}
	if err := r.handle(tx).Get(&row, query, args...); err != nil {
		return time.Time{}, 0, err
	}
	return row.Time, row.ID, nil
}

// DeleteCellMeasuresBefore deletes key's old-window cell_measure rows
// ordered strictly before (keepTime, keepID), the retention trimmer's
// delete step.
func (r *Repository) DeleteCellMeasuresBefore(ctx context.Context, tx *Transaction, key schema.CellKey, minAgeDays int, keepTime time.Time, keepID int64) (int64, error) {
	query, args, err := psql.Delete("cell_measure").
		Where(sq.Eq{"radio": key.Radio, "mcc": key.MCC, "mnc": key.MNC, "lac": key.LAC, "cid": key.CID}).
		Where(sq.Expr("created < now() - (? || ' days')::interval", minAgeDays)).
		Where(sq.Expr("(time, id) < (?, ?)", keepTime, keepID)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build DeleteCellMeasuresBefore query: %w", err)
	}

	res, err := r.handle(tx).Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateCellCounters writes back key's total_measures and new_measures
// after a trimming pass has deleted some of its rows.
func (r *Repository) UpdateCellCounters(ctx context.Context, tx *Transaction, key schema.CellKey, total, new int64) error {
	query, args, err := psql.Update("cell").
		Set("total_measures", total).
		Set("new_measures", new).
		Set("modified", sq.Expr("now()")).
		Where(sq.Eq{"radio": key.Radio, "mcc": key.MCC, "mnc": key.MNC, "lac": key.LAC, "cid": key.CID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build UpdateCellCounters query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}
