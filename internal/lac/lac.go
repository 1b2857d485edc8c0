// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lac recomputes the virtual station that represents a
// location area code's overall footprint from the positions of its
// physical sibling cells.
package lac

import (
	"context"

	"github.com/ichnaea-go/locationd/internal/geo"
	"github.com/ichnaea-go/locationd/internal/repository"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

// Scanner recomputes virtual LAC stations.
type Scanner struct {
	repo *repository.Repository
}

// NewScanner builds a Scanner against repo.
func NewScanner(repo *repository.Repository) *Scanner {
	return &Scanner{repo: repo}
}

// UpdateLAC recomputes the virtual LAC station for (radio, mcc, mnc,
// lac) as the centroid and enclosing bounding box of its physical
// sibling cells that already carry a position estimate. If no sibling
// has an estimate yet, the LAC station is left untouched.
func (s *Scanner) UpdateLAC(ctx context.Context, tx *repository.Transaction, radio schema.Radio, mcc, mnc, lac int32) error {
	siblings, err := s.repo.ListSiblingCells(ctx, tx, radio, mcc, mnc, lac)
	if err != nil {
		return err
	}
	if len(siblings) == 0 {
		return nil
	}

	est := computeLACEstimate(siblings)

	lacKey := schema.CellKey{Radio: radio, MCC: mcc, MNC: mnc, LAC: lac, CID: schema.CellIDLac}
	lacCell, err := s.repo.GetCell(ctx, tx, lacKey)
	if err != nil {
		lacCell = &schema.Cell{CellKey: lacKey}
	}
	lacCell.SetEstimate(est.lat, est.lon)
	lacCell.SetBBox(est.minLat, est.minLon, est.maxLat, est.maxLon)
	lacCell.SetRange(est.rangeMeters)
	lacCell.SetTotalMeasures(int64(len(siblings)))
	lacCell.SetNewMeasures(0)

	return s.repo.UpsertCell(ctx, tx, lacCell)
}

type lacEstimate struct {
	lat, lon                       int64
	minLat, minLon, maxLat, maxLon int64
	rangeMeters                    int64
}

// computeLACEstimate derives a LAC station's centroid, enclosing
// bounding box, and range from its physical sibling cells. Pure
// arithmetic over already-loaded rows, kept separate from UpdateLAC so
// it can be tested without a database.
func computeLACEstimate(siblings []*schema.Cell) lacEstimate {
	points := make([]geo.Point, 0, len(siblings))
	var minLat, minLon, maxLat, maxLon int64
	for i, c := range siblings {
		lat, lon := c.Estimate()
		points = append(points, geo.Point{Lat: geo.ToDegrees(lat), Lon: geo.ToDegrees(lon)})

		cMinLat, cMinLon, cMaxLat, cMaxLon := c.BBox()
		if i == 0 {
			minLat, minLon, maxLat, maxLon = cMinLat, cMinLon, cMaxLat, cMaxLon
			continue
		}
		if cMinLat < minLat {
			minLat = cMinLat
		}
		if cMinLon < minLon {
			minLon = cMinLon
		}
		if cMaxLat > maxLat {
			maxLat = cMaxLat
		}
		if cMaxLon > maxLon {
			maxLon = cMaxLon
		}
	}

	centroid := geo.Centroid(points)
	corners := []geo.Point{
		{Lat: geo.ToDegrees(minLat), Lon: geo.ToDegrees(minLon)},
		{Lat: geo.ToDegrees(minLat), Lon: geo.ToDegrees(maxLon)},
		{Lat: geo.ToDegrees(maxLat), Lon: geo.ToDegrees(minLon)},
		{Lat: geo.ToDegrees(maxLat), Lon: geo.ToDegrees(maxLon)},
	}
	rangeMeters := int64(geo.EnclosingRadius(centroid, corners) * 1000)

	return lacEstimate{
		lat: geo.FromDegrees(centroid.Lat), lon: geo.FromDegrees(centroid.Lon),
		minLat: minLat, minLon: minLon, maxLat: maxLat, maxLon: maxLon,
		rangeMeters: rangeMeters,
	}
}

// ScanLACs recomputes up to batch virtual LAC stations whose
// new_measures dirty flag is nonzero — set whenever a sibling cell's
// update touched the LAC, or a sibling was removed as orphaned.
func (s *Scanner) ScanLACs(ctx context.Context, tx *repository.Transaction, batch int) (updated int, err error) {
	keys, err := s.repo.LACsDirty(ctx, tx, batch)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := s.UpdateLAC(ctx, tx, k.Radio, k.MCC, k.MNC, k.LAC); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
