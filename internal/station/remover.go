// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package station

import (
	"context"

	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// RemoveCell deletes key's station row (if any) and, unless key is
// itself the virtual LAC station, deletes the enclosing LAC station
// too if that was its last physical sibling. A blacklisted cell is
// never resurrected by a later measurement batch, since
// repository.BlacklistCell is expected to have already been called
// for it; RemoveCell only tears down the now-stale rows.
func (u *Updater) RemoveCell(ctx context.Context, tx *repository.Transaction, key schema.CellKey) error {
	if err := u.repo.DeleteCell(ctx, tx, key); err != nil {
		return err
	}
	if key.IsVirtualLAC() {
		return nil
	}
	return u.repo.DeleteLACIfOrphaned(ctx, tx, key.Radio, key.MCC, key.MNC, key.LAC)
}

// RemoveWifi deletes key's station row, if any.
func (u *Updater) RemoveWifi(ctx context.Context, tx *repository.Transaction, key schema.WifiKey) error {
	return u.repo.DeleteWifi(ctx, tx, key)
}
