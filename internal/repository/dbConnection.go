// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ichnaea-go/locationd/pkg/log"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection
)

// DBConnection wraps the process-wide database handle.
type DBConnection struct {
	DB *sqlx.DB
}

// Connect opens the database handle once per process and runs the
// migration version check against it. driver is currently expected to
// be "postgres"; it is kept as a parameter so a future backend does
// not require changing every call site.
func Connect(driver string, dsn string) {
	dbConnOnce.Do(func() {
		if driver != "postgres" {
			log.Fatalf("unsupported database driver: %s", driver)
		}

		dbHandle, err := sqlx.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("sqlx.Open() error: %v", err)
		}

		cfg := GetConfig()
		dbHandle.SetMaxOpenConns(cfg.MaxOpenConnections)
		dbHandle.SetMaxIdleConns(cfg.MaxIdleConnections)
		dbHandle.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)
		dbHandle.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)

		if err := dbHandle.Ping(); err != nil {
			log.Fatalf("database ping failed: %v", err)
		}

		dbConnInstance = &DBConnection{DB: dbHandle}
		checkDBVersion(dbHandle)
	})
}

// GetConnection returns the process-wide database handle. Connect
// must have been called first.
func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		log.Fatalf("Database connection not initialized!")
	}

	return dbConnInstance
}
