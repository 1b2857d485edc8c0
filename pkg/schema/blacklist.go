// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// CellBlacklist marks a cell key as judged to be physically moving.
// Presence of a row suppresses re-admission of the key as a Cell.
type CellBlacklist struct {
	CellKey
	Created time.Time `db:"created"`
}

// WifiBlacklist marks a Wi-Fi key as judged to be physically moving.
type WifiBlacklist struct {
	Key     WifiKey   `db:"key"`
	Created time.Time `db:"created"`
}
