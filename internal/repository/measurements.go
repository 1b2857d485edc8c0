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

// CellMeasuresFor returns key's most recent limit measurement rows, in
// centimicrodegrees, newest first, for the aggregator to fold into the
// station's running estimate. Bounding by the station's own
// new_measures counter rather than fetching every row ever recorded
// keeps one pass scoped to its documented pending batch.
func (r *Repository) CellMeasuresFor(ctx context.Context, tx *Transaction, key schema.CellKey, limit int64) ([]schema.LatLon, error) {
	query, args, err := psql.Select("lat", "lon").
		From("cell_measure").
		Where(sq.Eq{"radio": key.Radio, "mcc": key.MCC, "mnc": key.MNC, "lac": key.LAC, "cid": key.CID}).
		OrderBy("created DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build CellMeasuresFor query: %w", err)
	}

	var points []schema.LatLon
	if err := r.handle(tx).Select(&points, query, args...); err != nil {
		return nil, err
	}
	return points, nil
}

// WifiMeasuresFor is the Wi-Fi equivalent of CellMeasuresFor.
func (r *Repository) WifiMeasuresFor(ctx context.Context, tx *Transaction, key schema.WifiKey, limit int64) ([]schema.LatLon, error) {
	query, args, err := psql.Select("lat", "lon").
		From("wifi_measure").
		Where(sq.Eq{"key": key}).
		OrderBy("created DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build WifiMeasuresFor query: %w", err)
	}

	var points []schema.LatLon
	if err := r.handle(tx).Select(&points, query, args...); err != nil {
		return nil, err
	}
	return points, nil
}

// CellMeasuresByIDs returns the measurement rows named by ids, for the
// backfill cell position task, which is driven by an explicit id list
// rather than the station's live new_measures counter.
func (r *Repository) CellMeasuresByIDs(ctx context.Context, tx *Transaction, ids []int64) ([]schema.LatLon, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := psql.Select("lat", "lon").
		From("cell_measure").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build CellMeasuresByIDs query: %w", err)
	}

	var points []schema.LatLon
	if err := r.handle(tx).Select(&points, query, args...); err != nil {
		return nil, err
	}
	return points, nil
}
