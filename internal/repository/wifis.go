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

// GetWifi fetches one access point row by its BSSID key.
func (r *Repository) GetWifi(ctx context.Context, tx *Transaction, key schema.WifiKey) (*schema.Wifi, error) {
	query, args, err := psql.Select("id", "key", "lat", "lon",
		"min_lat", "min_lon", "max_lat", "max_lon",
		"range", "new_measures", "total_measures").
		From("wifi").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetWifi query: %w", err)
	}

	w := &schema.Wifi{}
	if err := r.handle(tx).QueryRowx(query, args...).StructScan(w); err != nil {
		return nil, err
	}
	return w, nil
}

// UpsertWifi inserts w if its key is new, or updates the position and
// counter columns of the existing row otherwise.
func (r *Repository) UpsertWifi(ctx context.Context, tx *Transaction, w *schema.Wifi) error {
	query, args, err := psql.Insert("wifi").
		Columns("key", "lat", "lon", "min_lat", "min_lon", "max_lat", "max_lon",
			"range", "new_measures", "total_measures", "modified").
		Values(w.Key, w.Lat, w.Lon, w.MinLat, w.MinLon, w.MaxLat, w.MaxLon,
			w.Range, w.NewMeasures, w.TotalMeasures, sq.Expr("now()")).
		Suffix(`ON CONFLICT (key) DO UPDATE SET
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
		return fmt.Errorf("build UpsertWifi query: %w", err)
	}

	return r.handle(tx).QueryRowx(query, args...).Scan(&w.ID)
}

// DeleteWifi removes an access point row outright.
func (r *Repository) DeleteWifi(ctx context.Context, tx *Transaction, key schema.WifiKey) error {
	query, args, err := psql.Delete("wifi").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build DeleteWifi query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}

// BlacklistWifi inserts key into the Wi-Fi blacklist, ignoring the
// write if it is already present.
func (r *Repository) BlacklistWifi(ctx context.Context, tx *Transaction, key schema.WifiKey) error {
	query, args, err := psql.Insert("wifi_blacklist").
		Columns("key").
		Values(key).
		Suffix("ON CONFLICT (key) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build BlacklistWifi query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}

// IsWifiBlacklisted reports whether key has previously been judged to
// be physically moving and so must not be re-admitted as a station.
func (r *Repository) IsWifiBlacklisted(ctx context.Context, tx *Transaction, key schema.WifiKey) (bool, error) {
	query, args, err := psql.Select("key", "created").
		From("wifi_blacklist").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build IsWifiBlacklisted query: %w", err)
	}

	var entry schema.WifiBlacklist
	err = r.handle(tx).QueryRowx(query, args...).StructScan(&entry)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SelectWifisForUpdate returns up to batch access point keys with
// minNew <= new_measures < maxNew, the live Wi-Fi position-update
// task's station-selection step.
func (r *Repository) SelectWifisForUpdate(ctx context.Context, tx *Transaction, minNew, maxNew int64, batch int) ([]schema.WifiKey, error) {
	query, args, err := psql.Select("key").
		From("wifi").
		Where(sq.GtOrEq{"new_measures": minNew}).
		Where(sq.Lt{"new_measures": maxNew}).
		OrderBy("modified").
		Limit(uint64(batch)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SelectWifisForUpdate query: %w", err)
	}

	var keys []schema.WifiKey
	if err := r.handle(tx).Select(&keys, query, args...); err != nil {
		return nil, err
	}
	return keys, nil
}

// WifisOverQuota returns up to batch access points with total_measures
// greater than maxMeasures, the retention trimmer's candidate-selection
// step.
func (r *Repository) WifisOverQuota(ctx context.Context, tx *Transaction, maxMeasures int64, batch int) ([]*schema.Wifi, error) {
	query, args, err := psql.Select("id", "key", "lat", "lon",
		"min_lat", "min_lon", "max_lat", "max_lon",
		"range", "new_measures", "total_measures").
		From("wifi").
		Where(sq.Gt{"total_measures": maxMeasures}).
		OrderBy("total_measures DESC").
		Limit(uint64(batch)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build WifisOverQuota query: %w", err)
	}

	var wifis []*schema.Wifi
	if err := r.handle(tx).Select(&wifis, query, args...); err != nil {
		return nil, err
	}
	return wifis, nil
}

// CountOldWifiMeasures counts key's wifi_measure rows created at least
// minAgeDays ago, the retention trimmer's refine step.
func (r *Repository) CountOldWifiMeasures(ctx context.Context, tx *Transaction, key schema.WifiKey, minAgeDays int) (int64, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("wifi_measure").
		Where(sq.Eq{"key": key}).
		Where(sq.Expr("created < now() - (? || ' days')::interval", minAgeDays)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build CountOldWifiMeasures query: %w", err)
	}

	var count int64
	if err := r.handle(tx).Get(&count, query, args...); err != nil {
		return 0, err
	}
	return count, nil
}

// WifiCutoffRow returns the (time, id) of the row at offset within
// key's old-window rows ordered by (time, id) ascending.
func (r *Repository) WifiCutoffRow(ctx context.Context, tx *Transaction, key schema.WifiKey, minAgeDays int, offset int64) (time.Time, int64, error) {
	query, args, err := psql.Select("time", "id").
		From("wifi_measure").
		Where(sq.Eq{"key": key}).
		Where(sq.Expr("created < now() - (? || ' days')::interval", minAgeDays)).
		OrderBy("time", "id").
		Offset(uint64(offset)).
		Limit(1).
		ToSql()
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("build WifiCutoffRow query: %w", err)
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

// DeleteWifiMeasuresBefore deletes key's old-window wifi_measure rows
// ordered strictly before (keepTime, keepID), the retention trimmer's
// delete step.
func (r *Repository) DeleteWifiMeasuresBefore(ctx context.Context, tx *Transaction, key schema.WifiKey, minAgeDays int, keepTime time.Time, keepID int64) (int64, error) {
	query, args, err := psql.Delete("wifi_measure").
		Where(sq.Eq{"key": key}).
		Where(sq.Expr("created < now() - (? || ' days')::interval", minAgeDays)).
		Where(sq.Expr("(time, id) < (?, ?)", keepTime, keepID)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build DeleteWifiMeasuresBefore query: %w", err)
	}

	res, err := r.handle(tx).Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateWifiCounters writes back key's total_measures and new_measures
// after a trimming pass has deleted some of its rows.
func (r *Repository) UpdateWifiCounters(ctx context.Context, tx *Transaction, key schema.WifiKey, total, new int64) error {
	query, args, err := psql.Update("wifi").
		Set("total_measures", total).
		Set("new_measures", new).
		Set("modified", sq.Expr("now()")).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build UpdateWifiCounters query: %w", err)
	}
	_, err = r.handle(tx).Exec(query, args...)
	return err
}
