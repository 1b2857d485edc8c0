// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ichnaea-go/locationd/pkg/log"
)

// Transaction wraps a single sqlx transaction. It satisfies
// taskrunner.Session, and is also handed directly to repository
// methods that need to read and write within it.
type Transaction struct {
	Tx *sqlx.Tx

	done bool
}

// BeginTx starts a new Transaction against db.
func BeginTx(ctx context.Context, db *sqlx.DB) (*Transaction, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		log.Warnf("Error while beginning transaction: %v", err)
		return nil, err
	}
	return &Transaction{Tx: tx}, nil
}

// Commit commits the transaction. Calling Commit twice returns an error.
func (t *Transaction) Commit() error {
	if t.done {
		return errors.New("transaction already committed or rolled back")
	}
	t.done = true
	if err := t.Tx.Commit(); err != nil {
		log.Warnf("Error while committing transaction: %v", err)
		return err
	}
	return nil
}

// Rollback rolls the transaction back. It is safe to call after a
// Commit or another Rollback; both are no-ops in that case.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.Tx.Rollback(); err != nil {
		log.Warnf("Error while rolling back transaction: %v", err)
		return err
	}
	return nil
}

// OpenSession opens a Transaction against the process-wide database
// handle, in the shape taskrunner.Opener expects.
func OpenSession(ctx context.Context) (*Transaction, error) {
	return BeginTx(ctx, GetConnection().DB)
}
