// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package station

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/ichnaea-go/locationd/internal/geo"
	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// testRepo opens a Repository against a real, already-migrated
// Postgres instance. These are integration tests and are skipped
// unless LOCATIOND_TEST_DSN points at one.
func testRepo(t *testing.T) (*repository.Repository, *sqlx.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := os.Getenv("LOCATIOND_TEST_DSN")
	if dsn == "" {
		t.Skip("LOCATIOND_TEST_DSN not set - requires a migrated Postgres instance")
	}
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &repository.Repository{DB: db}, db
}

func deg(v float64) int64 { return geo.FromDegrees(v) }

func TestUpdateCellCreatesNewStation(t *testing.T) {
	repo, db := testRepo(t)
	ctx := context.Background()

	key := schema.CellKey{Radio: schema.RadioLTE, MCC: 262, MNC: 1, LAC: 2001, CID: 555001}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
		db.Exec(`DELETE FROM cell WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
	})

	tx, err := repository.BeginTx(ctx, db)
	require.NoError(t, err)
	defer tx.Rollback()

	// Ingestion is expected to have already created the station row and
	// counted the pending row against new_measures before the updater
	// ever runs.
	require.NoError(t, repo.UpsertCell(ctx, tx, &schema.Cell{CellKey: key, TotalMeasures: 1, NewMeasures: 1}))

	_, err = tx.Tx.Exec(`INSERT INTO cell_measure (radio, mcc, mnc, lac, cid, lat, lon, time) VALUES ($1,$2,$3,$4,$5,$6,$7, now())`,
		key.Radio, key.MCC, key.MNC, key.LAC, key.CID, deg(50.0), deg(10.0))
	require.NoError(t, err)

	u := NewUpdater(repo)
	moved, err := u.UpdateCell(ctx, tx, key)
	require.NoError(t, err)
	require.False(t, moved)

	cell, err := repo.GetCell(ctx, tx, key)
	require.NoError(t, err)
	require.True(t, cell.HasEstimate())
	require.EqualValues(t, 0, cell.NewMeasures, "pending batch folded, counter reset")
	require.EqualValues(t, 1, cell.TotalMeasures)

	var remaining int
	require.NoError(t, tx.Tx.Get(&remaining, `SELECT COUNT(*) FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
		key.Radio, key.MCC, key.MNC, key.LAC, key.CID))
	require.Equal(t, 1, remaining, "measurement rows survive the updater; only the archival reaper deletes them")

	require.NoError(t, tx.Commit())
}

func TestUpdateCellBlacklistsOnMovement(t *testing.T) {
	repo, db := testRepo(t)
	ctx := context.Background()

	key := schema.CellKey{Radio: schema.RadioGSM, MCC: 262, MNC: 1, LAC: 2002, CID: 555002}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
		db.Exec(`DELETE FROM cell WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
		db.Exec(`DELETE FROM cell_blacklist WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
	})

	tx, err := repository.BeginTx(ctx, db)
	require.NoError(t, err)
	defer tx.Rollback()

	cell := &schema.Cell{CellKey: key, TotalMeasures: 5, NewMeasures: 1}
	cell.SetEstimate(deg(50.0), deg(10.0))
	cell.SetBBox(deg(50.0), deg(10.0), deg(50.0), deg(10.0))
	require.NoError(t, repo.UpsertCell(ctx, tx, cell))

	_, err = tx.Tx.Exec(`INSERT INTO cell_measure (radio, mcc, mnc, lac, cid, lat, lon, time) VALUES ($1,$2,$3,$4,$5,$6,$7, now())`,
		key.Radio, key.MCC, key.MNC, key.LAC, key.CID, deg(60.0), deg(20.0))
	require.NoError(t, err)

	u := NewUpdater(repo)
	moved, err := u.UpdateCell(ctx, tx, key)
	require.NoError(t, err)
	require.True(t, moved)

	_, err = repo.GetCell(ctx, tx, key)
	require.Error(t, err, "blacklisted cell must no longer exist")

	var remaining int
	require.NoError(t, tx.Tx.Get(&remaining, `SELECT COUNT(*) FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
		key.Radio, key.MCC, key.MNC, key.LAC, key.CID))
	require.Equal(t, 1, remaining, "moved cell's measurement rows are not deleted by the updater")

	require.NoError(t, tx.Commit())
}

func TestUpdateCellSkipsBlacklistedKey(t *testing.T) {
	repo, db := testRepo(t)
	ctx := context.Background()

	key := schema.CellKey{Radio: schema.RadioGSM, MCC: 262, MNC: 1, LAC: 2003, CID: 555003}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
		db.Exec(`DELETE FROM cell_blacklist WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
	})

	tx, err := repository.BeginTx(ctx, db)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, repo.BlacklistCell(ctx, tx, key))
	_, err = tx.Tx.Exec(`INSERT INTO cell_measure (radio, mcc, mnc, lac, cid, lat, lon, time) VALUES ($1,$2,$3,$4,$5,$6,$7, now())`,
		key.Radio, key.MCC, key.MNC, key.LAC, key.CID, deg(50.0), deg(10.0))
	require.NoError(t, err)

	u := NewUpdater(repo)
	moved, err := u.UpdateCell(ctx, tx, key)
	require.NoError(t, err)
	require.False(t, moved)

	var remaining int
	require.NoError(t, tx.Tx.Get(&remaining, `SELECT COUNT(*) FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
		key.Radio, key.MCC, key.MNC, key.LAC, key.CID))
	require.Equal(t, 1, remaining, "blacklisted key's measurements are left for archival, not deleted here")

	require.NoError(t, tx.Commit())
}

func TestUpdateCellBackfillFoldsExplicitIDs(t *testing.T) {
	repo, db := testRepo(t)
	ctx := context.Background()

	key := schema.CellKey{Radio: schema.RadioLTE, MCC: 262, MNC: 1, LAC: 2004, CID: 555004}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
		db.Exec(`DELETE FROM cell WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
	})

	tx, err := repository.BeginTx(ctx, db)
	require.NoError(t, err)
	defer tx.Rollback()

	// An already-established station, the case backfill exists for:
	// folding historical rows the live updater never saw into a
	// position estimate that already exists.
	cell := &schema.Cell{CellKey: key, TotalMeasures: 2, NewMeasures: 0}
	cell.SetEstimate(deg(50.0), deg(10.0))
	cell.SetBBox(deg(50.0), deg(10.0), deg(50.0), deg(10.0))
	require.NoError(t, repo.UpsertCell(ctx, tx, cell))

	var ids []int64
	for i := 0; i < 3; i++ {
		var id int64
		require.NoError(t, tx.Tx.Get(&id,
			`INSERT INTO cell_measure (radio, mcc, mnc, lac, cid, lat, lon, time) VALUES ($1,$2,$3,$4,$5,$6,$7, now()) RETURNING id`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID, deg(50.0), deg(10.0)))
		ids = append(ids, id)
	}

	u := NewUpdater(repo)
	moved, err := u.UpdateCellBackfill(ctx, tx, key, ids)
	require.NoError(t, err)
	require.False(t, moved)

	got, err := repo.GetCell(ctx, tx, key)
	require.NoError(t, err)
	require.True(t, got.HasEstimate())
	require.EqualValues(t, 5, got.TotalMeasures, "backfill adds to total_measures")
	require.EqualValues(t, 0, got.NewMeasures, "backfill never touches new_measures")

	require.NoError(t, tx.Commit())
}
