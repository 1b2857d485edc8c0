// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package aggregator

import (
	"math"
	"testing"

	"github.com/ichnaea-go/locationd/internal/geo"
	"github.com/ichnaea-go/locationd/pkg/schema"
)

func deg(v float64) int64 { return geo.FromDegrees(v) }

func TestUpdateNewStation(t *testing.T) {
	c := &schema.Cell{}
	measures := []schema.LatLon{
		{Lat: deg(50.0), Lon: deg(10.0)},
		{Lat: deg(50.002), Lon: deg(10.0)},
	}

	moving := Update(c, measures, CellMaxDistKM, true)
	if moving {
		t.Fatal("brand-new station must never be reported as moving")
	}
	if !c.HasEstimate() {
		t.Fatal("expected an estimate to be set")
	}
	if c.TotalMeasures != 0 {
		t.Fatalf("a brand-new station's total_measures must stay untouched by this call, got %d", c.TotalMeasures)
	}
	lat, _ := c.Estimate()
	if math.Abs(geo.ToDegrees(lat)-50.001) > 1e-6 {
		t.Fatalf("expected mean lat ~50.001, got %v", geo.ToDegrees(lat))
	}
}

func TestUpdateWeightedRefinement(t *testing.T) {
	w := &schema.Wifi{
		TotalMeasures: 90,
		NewMeasures:   10,
	}
	w.SetEstimate(deg(50.0), deg(10.0))
	w.SetBBox(deg(50.0), deg(10.0), deg(50.0), deg(10.0))

	measures := make([]schema.LatLon, 10)
	for i := range measures {
		measures[i] = schema.LatLon{Lat: deg(50.001), Lon: deg(10.0)}
	}

	moving := Update(w, measures, WifiMaxDistKM, false)
	if moving {
		t.Fatal("did not expect a movement detection for a 0.001 degree nudge")
	}

	lat, _ := w.Estimate()
	if math.Abs(geo.ToDegrees(lat)-50.0001) > 1e-4 {
		t.Fatalf("expected refined lat ~50.0001, got %v", geo.ToDegrees(lat))
	}
	if w.TotalMeasures != 90 {
		t.Fatalf("incremental update must not change total_measures, got %d", w.TotalMeasures)
	}
	if w.NewMeasures != 0 {
		t.Fatalf("expected new_measures to drain to 0, got %d", w.NewMeasures)
	}
}

func TestUpdateDetectsMovement(t *testing.T) {
	c := &schema.Cell{TotalMeasures: 5}
	c.SetEstimate(deg(50.0), deg(10.0))
	c.SetBBox(deg(50.0), deg(10.0), deg(50.0), deg(10.0))

	measures := []schema.LatLon{
		{Lat: deg(60.0), Lon: deg(20.0)},
	}

	moving := Update(c, measures, CellMaxDistKM, true)
	if !moving {
		t.Fatal("expected movement to be detected for a >150km jump")
	}
	if c.TotalMeasures != 5 {
		t.Fatal("a station flagged as moving must be left unmutated")
	}
}

func TestUpdateEmptyBatchIsNoOp(t *testing.T) {
	c := &schema.Cell{TotalMeasures: 5}
	c.SetEstimate(deg(50.0), deg(10.0))

	moving := Update(c, nil, CellMaxDistKM, true)
	if moving {
		t.Fatal("empty batch must never report movement")
	}
	if c.TotalMeasures != 5 {
		t.Fatal("empty batch must not mutate the station")
	}
}

func TestFloorDivMatchesPythonSemantics(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{7, 2, 3},
		{-7, 2, -4},
		{7, -2, -4},
		{-7, -2, 3},
		{0, 5, 0},
	}
	for _, c := range cases {
		if got := floorDiv(c.a, c.b); got != c.want {
			t.Fatalf("floorDiv(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
