// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aggregator folds a batch of recent measurements into a
// station's running position estimate, detecting stations that have
// moved too far to still be the same physical tower or access point.
package aggregator

import (
	"github.com/ichnaea-go/locationd/internal/geo"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// Station is the subset of schema.Cell / schema.Wifi the aggregator
// needs to read and mutate. Both station kinds implement it.
type Station interface {
	HasEstimate() bool
	Estimate() (lat, lon int64)
	SetEstimate(lat, lon int64)
	BBox() (minLat, minLon, maxLat, maxLon int64)
	SetBBox(minLat, minLon, maxLat, maxLon int64)
	Counters() (total, new int64)
	SetTotalMeasures(int64)
	SetNewMeasures(int64)
	SetRange(meters int64)
}

var (
	// WifiMaxDistKM is the bounding-box diameter, in kilometers, beyond
	// which a Wi-Fi access point is judged to have physically moved.
	WifiMaxDistKM = 5.0
	// CellMaxDistKM is the cell-tower equivalent of WifiMaxDistKM.
	CellMaxDistKM = 150.0
)

// Update folds measures into st's running position estimate.
//
// backfill=false (incremental) means measures were already counted
// into st's TotalMeasures at ingestion time, and NewMeasures tracks
// how many of them are still unincorporated; backfill=true means
// measures were never counted and Update must add them to
// TotalMeasures itself.
//
// Update returns true if st already had a position estimate and its
// bounding box, once measures is folded in, exceeds maxDistKM —
// meaning st is judged to have physically moved. In that case st is
// left unmutated; the caller is responsible for blacklisting and
// deleting it. A station with no prior estimate is never reported as
// moving.
//
// An empty batch is a no-op.
func Update(st Station, measures []schema.LatLon, maxDistKM float64, backfill bool) (moving bool) {
	n := int64(len(measures))
	if n == 0 {
		return false
	}

	var sumLat, sumLon int64
	lats := make([]int64, 0, n+1)
	lons := make([]int64, 0, n+1)
	for _, m := range measures {
		sumLat += m.Lat
		sumLon += m.Lon
		lats = append(lats, m.Lat)
		lons = append(lons, m.Lon)
	}
	batchLat := floorDiv(sumLat, n)
	batchLon := floorDiv(sumLon, n)

	existing := st.HasEstimate()
	if existing {
		curLat, curLon := st.Estimate()
		lats = append(lats, curLat)
		lons = append(lons, curLon)
	} else {
		st.SetEstimate(batchLat, batchLon)
	}

	minLat, maxLat := minMax(lats)
	minLon, maxLon := minMax(lons)

	if existing {
		eMinLat, eMinLon, eMaxLat, eMaxLon := st.BBox()
		minLat = minInt64(minLat, eMinLat)
		minLon = minInt64(minLon, eMinLon)
		maxLat = maxInt64(maxLat, eMaxLat)
		maxLon = maxInt64(maxLon, eMaxLon)
	}

	boxDist := geo.Distance(
		geo.Point{Lat: geo.ToDegrees(minLat), Lon: geo.ToDegrees(minLon)},
		geo.Point{Lat: geo.ToDegrees(maxLat), Lon: geo.ToDegrees(maxLon)},
	)

	if existing && boxDist > maxDistKM {
		return true
	}

	if existing {
		total, _ := st.Counters()
		var newTotal, oldLen int64
		if backfill {
			newTotal = total + n
			oldLen = total
		} else {
			newTotal = total
			oldLen = newTotal - n
		}

		curLat, curLon := st.Estimate()
		newLat := floorDiv(curLat*oldLen+batchLat*n, newTotal)
		newLon := floorDiv(curLon*oldLen+batchLon*n, newTotal)
		st.SetEstimate(newLat, newLon)
		st.SetTotalMeasures(newTotal)
	}

	if !backfill {
		_, newMeasures := st.Counters()
		st.SetNewMeasures(newMeasures - n)
	}

	st.SetBBox(minLat, minLon, maxLat, maxLon)

	clat, clon := st.Estimate()
	center := geo.Point{Lat: geo.ToDegrees(clat), Lon: geo.ToDegrees(clon)}
	corners := []geo.Point{
		{Lat: geo.ToDegrees(minLat), Lon: geo.ToDegrees(minLon)},
		{Lat: geo.ToDegrees(minLat), Lon: geo.ToDegrees(maxLon)},
		{Lat: geo.ToDegrees(maxLat), Lon: geo.ToDegrees(minLon)},
		{Lat: geo.ToDegrees(maxLat), Lon: geo.ToDegrees(maxLon)},
	}
	rangeKM := geo.EnclosingRadius(center, corners)
	st.SetRange(int64(rangeKM * 1000))

	return false
}

// floorDiv divides like Python's `//`: it rounds toward negative
// infinity rather than toward zero, which matters once southern
// latitudes or western longitudes (negative centimicrodegrees) enter
// the running mean.
func floorDiv(a, b int64) int64 {
	q := a / b
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		q--
	}
	return q
}

func minMax(vs []int64) (min, max int64) {
	min, max = vs[0], vs[0]
	for _, v := range vs[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
