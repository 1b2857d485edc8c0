// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "database/sql"

// Radio identifies the cellular access technology of a cell tower.
type Radio string

const (
	RadioGSM  Radio = "gsm"
	RadioUMTS Radio = "umts"
	RadioLTE  Radio = "lte"
	RadioCDMA Radio = "cdma"
)

// CellIDLac is the reserved CID value that marks a Cell row as the
// virtual station representing its enclosing location area code,
// rather than a physical tower.
const CellIDLac int64 = -2

// CellKey identifies a unique cell tower (or, with CID == CellIDLac,
// the virtual LAC station for the other four fields).
type CellKey struct {
	Radio Radio `db:"radio"`
	MCC   int32 `db:"mcc"`
	MNC   int32 `db:"mnc"`
	LAC   int32 `db:"lac"`
	CID   int64 `db:"cid"`
}

// IsMalformed reports whether a key can never resolve to a usable
// physical cell: a missing LAC/CID placeholder, or the LAC sentinel
// itself appearing where a concrete cell was expected.
func (k CellKey) IsMalformed() bool {
	return k.LAC == -1 || k.CID == -1 || k.CID == CellIDLac
}

// IsVirtualLAC reports whether the key addresses the synthetic LAC
// station rather than a physical cell.
func (k CellKey) IsVirtualLAC() bool {
	return k.CID == CellIDLac
}

// Cell is one row of the cell station catalog: either a physical tower
// (CID != CellIDLac) or the virtual LAC record derived from its
// siblings. Lat/Lon are nullable: a NULL pair means the station has no
// position estimate yet, tracked explicitly rather than inferred from
// lat == 0 && lon == 0 (which would misclassify a real station near
// (0, 0), off the coast of West Africa).
type Cell struct {
	ID int64 `db:"id"`
	CellKey
	Lat           sql.NullInt64 `db:"lat"`
	Lon           sql.NullInt64 `db:"lon"`
	MinLat        int64         `db:"min_lat"`
	MinLon        int64         `db:"min_lon"`
	MaxLat        int64         `db:"max_lat"`
	MaxLon        int64         `db:"max_lon"`
	Range         int64         `db:"range"`
	NewMeasures   int64         `db:"new_measures"`
	TotalMeasures int64         `db:"total_measures"`
}

// HasEstimate reports whether the station carries a prior position estimate.
func (c *Cell) HasEstimate() bool {
	return c.Lat.Valid && c.Lon.Valid
}

// SetEstimate records a new position estimate for the station.
func (c *Cell) SetEstimate(lat, lon int64) {
	c.Lat = sql.NullInt64{Int64: lat, Valid: true}
	c.Lon = sql.NullInt64{Int64: lon, Valid: true}
}

func (c *Cell) Estimate() (lat, lon int64) {
	return c.Lat.Int64, c.Lon.Int64
}

func (c *Cell) BBox() (minLat, minLon, maxLat, maxLon int64) {
	return c.MinLat, c.MinLon, c.MaxLat, c.MaxLon
}

func (c *Cell) SetBBox(minLat, minLon, maxLat, maxLon int64) {
	c.MinLat, c.MinLon, c.MaxLat, c.MaxLon = minLat, minLon, maxLat, maxLon
}

func (c *Cell) Counters() (total, new int64) {
	return c.TotalMeasures, c.NewMeasures
}

func (c *Cell) SetTotalMeasures(v int64) { c.TotalMeasures = v }
func (c *Cell) SetNewMeasures(v int64)   { c.NewMeasures = v }
func (c *Cell) SetRange(meters int64)    { c.Range = meters }

// WifiKey identifies a Wi-Fi access point by its BSSID.
type WifiKey string

// Wifi is one row of the Wi-Fi station catalog.
type Wifi struct {
	ID            int64         `db:"id"`
	Key           WifiKey       `db:"key"`
	Lat           sql.NullInt64 `db:"lat"`
	Lon           sql.NullInt64 `db:"lon"`
	MinLat        int64         `db:"min_lat"`
	MinLon        int64         `db:"min_lon"`
	MaxLat        int64         `db:"max_lat"`
	MaxLon        int64         `db:"max_lon"`
	Range         int64         `db:"range"`
	NewMeasures   int64         `db:"new_measures"`
	TotalMeasures int64         `db:"total_measures"`
}

func (w *Wifi) HasEstimate() bool {
	return w.Lat.Valid && w.Lon.Valid
}

func (w *Wifi) SetEstimate(lat, lon int64) {
	w.Lat = sql.NullInt64{Int64: lat, Valid: true}
	w.Lon = sql.NullInt64{Int64: lon, Valid: true}
}

func (w *Wifi) Estimate() (lat, lon int64) {
	return w.Lat.Int64, w.Lon.Int64
}

func (w *Wifi) BBox() (minLat, minLon, maxLat, maxLon int64) {
	return w.MinLat, w.MinLon, w.MaxLat, w.MaxLon
}

func (w *Wifi) SetBBox(minLat, minLon, maxLat, maxLon int64) {
	w.MinLat, w.MinLon, w.MaxLat, w.MaxLon = minLat, minLon, maxLat, maxLon
}

func (w *Wifi) Counters() (total, new int64) {
	return w.TotalMeasures, w.NewMeasures
}

func (w *Wifi) SetTotalMeasures(v int64) { w.TotalMeasures = v }
func (w *Wifi) SetNewMeasures(v int64)   { w.NewMeasures = v }
func (w *Wifi) SetRange(meters int64)    { w.Range = meters }
