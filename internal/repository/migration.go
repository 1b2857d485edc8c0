// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/ichnaea-go/locationd/pkg/log"
)

const supportedVersion uint = 1

// SchemaVersion is the migration version this build of the code
// expects, stamped into each archive block so a reader downstream
// knows which column layout its CSV follows.
const SchemaVersion = supportedVersion

//go:embed migrations/postgres/*.sql
var migrationFiles embed.FS

func newMigrate(db *sqlx.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, err
	}
	d, err := iofs.New(migrationFiles, "migrations/postgres")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithInstance("iofs", d, "postgres", driver)
}

func checkDBVersion(db *sqlx.DB) {
	m, err := newMigrate(db)
	if err != nil {
		log.Fatal(err)
	}

	v, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Warn("Database has no schema yet, run with --migrate-db first")
			return
		}
		log.Fatal(err)
	}

	if dirty {
		log.Fatalf("Database schema is in a dirty state at version %d, needs manual repair", v)
	}

	if v < supportedVersion {
		log.Warnf("Database schema is at version %d, need %d. Run with --migrate-db", v, supportedVersion)
	}
}

// MigrateDB applies all pending schema migrations.
func MigrateDB(driver string, dsn string) {
	dbHandle, err := sqlx.Open("postgres", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer dbHandle.Close()

	m, err := newMigrate(dbHandle)
	if err != nil {
		log.Fatal(err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal(err)
	}

	m.Close()
}
