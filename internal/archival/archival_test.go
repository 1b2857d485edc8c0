// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package archival

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/ichnaea-go/locationd/internal/geo"
	"github.com/ichnaea-go/locationd/internal/objectstore"
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

func TestPlanWriteReapRoundTrip(t *testing.T) {
	repo, db := testRepo(t)
	ctx := context.Background()

	key := schema.WifiKey("aabbccddeeff")
	t.Cleanup(func() {
		db.Exec(`DELETE FROM wifi_measure WHERE key=$1`, key)
		db.Exec(`DELETE FROM measure_block WHERE measure_type=$1`, schema.MeasureTypeWifi)
	})

	tx, err := repository.BeginTx(ctx, db)
	require.NoError(t, err)
	defer tx.Rollback()

	for i := 0; i < 3; i++ {
		_, err := tx.Tx.Exec(`INSERT INTO wifi_measure (key, lat, lon, time, created)
			VALUES ($1,$2,$3, now(), now() - interval '10 days')`,
			key, deg(50.0+float64(i)*0.01), deg(10.0))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	tx, err = repository.BeginTx(ctx, db)
	require.NoError(t, err)
	defer tx.Rollback()

	planner := NewPlanner(repo, 3, 1)
	blocks, err := planner.Plan(ctx, tx, schema.MeasureTypeWifi)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	dir := t.TempDir()
	store, err := objectstore.NewFileStore(dir)
	require.NoError(t, err)

	writer := NewWriter(repo, store)
	written, err := writer.WriteAll(ctx, tx, schema.MeasureTypeWifi, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, written)

	reaper := NewReaper(repo, store)
	reaped, err := reaper.ReapAll(ctx, tx, schema.MeasureTypeWifi)
	require.NoError(t, err)
	require.Equal(t, 1, reaped)

	remaining, err := repo.WifiMeasuresFor(ctx, tx, key, 100)
	require.NoError(t, err)
	require.Len(t, remaining, 0, "reaped block's source rows must be gone")

	require.NoError(t, tx.Commit())
}

func TestPlanDoesNothingBelowBatchSize(t *testing.T) {
	repo, db := testRepo(t)
	ctx := context.Background()

	key := schema.WifiKey("112233445566")
	t.Cleanup(func() {
		db.Exec(`DELETE FROM wifi_measure WHERE key=$1`, key)
	})

	tx, err := repository.BeginTx(ctx, db)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Tx.Exec(`INSERT INTO wifi_measure (key, lat, lon, time, created) VALUES ($1,$2,$3, now(), now())`,
		key, deg(50.0), deg(10.0))
	require.NoError(t, err)

	planner := NewPlanner(repo, 1000, 1)
	blocks, err := planner.Plan(ctx, tx, schema.MeasureTypeWifi)
	require.NoError(t, err)
	require.Len(t, blocks, 0)

	require.NoError(t, tx.Commit())
}
