// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package repository is the SQL data-access layer: station catalogs,
// raw measurements, blacklists and archive blocks, all built on top of
// the shared Postgres connection and squirrel query builder.
package repository

import (
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Repository bundles every domain query against a single *sqlx.DB.
type Repository struct {
	DB *sqlx.DB
}

var (
	repoOnce     sync.Once
	repoInstance *Repository
)

// GetRepository returns the process-wide Repository, built on top of
// the connection opened by Connect.
func GetRepository() *Repository {
	repoOnce.Do(func() {
		repoInstance = &Repository{DB: GetConnection().DB}
	})
	return repoInstance
}

// dbOrTx lets a method run either inside a caller-provided transaction
// or directly against the pooled connection.
type dbOrTx interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
}

func (r *Repository) handle(tx *Transaction) dbOrTx {
	if tx != nil {
		return tx.Tx
	}
	return r.DB
}
