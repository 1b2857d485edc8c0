// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package retention

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

// TestCellTrimmerClampsCounters exercises the quota/cutoff/delete/clamp
// algorithm end to end: a station far over its quota, with every row
// old enough to be a candidate, gets trimmed down to exactly the quota
// and its counters adjusted to match.
func TestCellTrimmerClampsCounters(t *testing.T) {
	repo, db := testRepo(t)
	ctx := context.Background()

	key := schema.CellKey{Radio: schema.RadioLTE, MCC: 262, MNC: 1, LAC: 3001, CID: 777002}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
		db.Exec(`DELETE FROM cell WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
	})

	tx, err := repository.BeginTx(ctx, db)
	require.NoError(t, err)
	defer tx.Rollback()

	cell := &schema.Cell{CellKey: key, TotalMeasures: 150, NewMeasures: 120}
	require.NoError(t, repo.UpsertCell(ctx, tx, cell))

	for i := 0; i < 150; i++ {
		_, err := tx.Tx.Exec(`INSERT INTO cell_measure (radio, mcc, mnc, lac, cid, lat, lon, time, created)
			VALUES ($1,$2,$3,$4,$5,$6,$7, now(), now() - interval '30 days' + (interval '1 second' * $8))`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID, deg(50.0), deg(10.0), i)
		require.NoError(t, err)
	}

	trimmer := NewCellTrimmer(repo)
	deleted, err := trimmer.Run(ctx, tx, 50, 7, 10)
	require.NoError(t, err)
	require.Equal(t, int64(100), deleted, "150 old rows trimmed down to the 50-row quota")

	got, err := repo.GetCell(ctx, tx, key)
	require.NoError(t, err)
	require.EqualValues(t, 50, got.TotalMeasures)
	require.EqualValues(t, 50, got.NewMeasures, "new_measures clamped down with total_measures")

	var remaining int
	require.NoError(t, tx.Tx.Get(&remaining, `SELECT COUNT(*) FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
		key.Radio, key.MCC, key.MNC, key.LAC, key.CID))
	require.Equal(t, 50, remaining)

	require.NoError(t, tx.Commit())
}

// TestCellTrimmerSkipsCandidateBelowOldWindowQuota covers the refine
// step: a station over its total quota but whose excess rows are all
// too recent to count as candidates yet is left untouched.
func TestCellTrimmerSkipsCandidateBelowOldWindowQuota(t *testing.T) {
	repo, db := testRepo(t)
	ctx := context.Background()

	key := schema.CellKey{Radio: schema.RadioLTE, MCC: 262, MNC: 1, LAC: 3001, CID: 777003}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM cell_measure WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
		db.Exec(`DELETE FROM cell WHERE radio=$1 AND mcc=$2 AND mnc=$3 AND lac=$4 AND cid=$5`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID)
	})

	tx, err := repository.BeginTx(ctx, db)
	require.NoError(t, err)
	defer tx.Rollback()

	cell := &schema.Cell{CellKey: key, TotalMeasures: 60, NewMeasures: 60}
	require.NoError(t, repo.UpsertCell(ctx, tx, cell))

	for i := 0; i < 60; i++ {
		_, err := tx.Tx.Exec(`INSERT INTO cell_measure (radio, mcc, mnc, lac, cid, lat, lon, time, created)
			VALUES ($1,$2,$3,$4,$5,$6,$7, now(), now())`,
			key.Radio, key.MCC, key.MNC, key.LAC, key.CID, deg(50.0), deg(10.0))
		require.NoError(t, err)
	}

	trimmer := NewCellTrimmer(repo)
	deleted, err := trimmer.Run(ctx, tx, 50, 7, 10)
	require.NoError(t, err)
	require.Equal(t, int64(0), deleted, "no rows are old enough to be candidates yet")

	got, err := repo.GetCell(ctx, tx, key)
	require.NoError(t, err)
	require.EqualValues(t, 60, got.TotalMeasures, "counters untouched when nothing is trimmed")

	require.NoError(t, tx.Commit())
}

func TestCellTrimmerNoCandidatesIsNoOp(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	tx, err := repository.BeginTx(ctx, repo.DB)
	require.NoError(t, err)
	defer tx.Rollback()

	trimmer := NewCellTrimmer(repo)
	n, err := trimmer.Run(ctx, tx, 1000000, 7, 10)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	require.NoError(t, tx.Commit())
}

func TestWifiTrimmerMeasureType(t *testing.T) {
	trimmer := NewWifiTrimmer(nil)
	require.Equal(t, schema.MeasureTypeWifi, trimmer.MeasureType())
}
