// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// CellMeasure is a single, immutable raw position fix for a cell
// tower, submitted by a mobile client.
type CellMeasure struct {
	ID int64 `db:"id"`
	CellKey
	Lat     int64     `db:"lat"`
	Lon     int64     `db:"lon"`
	Time    time.Time `db:"time"`
	Created time.Time `db:"created"`
}

// WifiMeasure is a single, immutable raw position fix for a Wi-Fi
// access point, submitted by a mobile client.
type WifiMeasure struct {
	ID      int64     `db:"id"`
	Key     WifiKey   `db:"key"`
	Lat     int64     `db:"lat"`
	Lon     int64     `db:"lon"`
	Time    time.Time `db:"time"`
	Created time.Time `db:"created"`
}

// LatLon is a bare coordinate pair, used when folding a measurement
// batch into a station's running position estimate.
type LatLon struct {
	Lat int64
	Lon int64
}
