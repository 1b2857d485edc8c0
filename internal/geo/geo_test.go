// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package geo

import (
	"math"
	"testing"
)

func TestToFromDegreesRoundTrip(t *testing.T) {
	v := FromDegrees(50.0010000)
	if got := ToDegrees(v); math.Abs(got-50.001) > 1e-9 {
		t.Fatalf("round trip mismatch: got %v", got)
	}
}

func TestDistanceSamePoint(t *testing.T) {
	p := Point{Lat: 50.0, Lon: 10.0}
	if d := Distance(p, p); d != 0 {
		t.Fatalf("expected 0 distance, got %v", d)
	}
}

func TestDistanceKnownSeparation(t *testing.T) {
	// roughly 1 degree of latitude is ~111km
	d := Distance(Point{Lat: 50.0, Lon: 10.0}, Point{Lat: 51.0, Lon: 10.0})
	if d < 110 || d > 112 {
		t.Fatalf("expected ~111km, got %v", d)
	}
}

func TestDistanceFarApart(t *testing.T) {
	// (50,10) to (60,20) is far more than 150km
	d := Distance(Point{Lat: 50.0, Lon: 10.0}, Point{Lat: 60.0, Lon: 20.0})
	if d < 150 {
		t.Fatalf("expected >150km, got %v", d)
	}
}

func TestCentroid(t *testing.T) {
	pts := []Point{
		{Lat: 50.0, Lon: 10.0},
		{Lat: 50.0, Lon: 10.2},
		{Lat: 50.2, Lon: 10.0},
	}
	c := Centroid(pts)
	wantLat := (50.0 + 50.0 + 50.2) / 3
	wantLon := (10.0 + 10.2 + 10.0) / 3
	if math.Abs(c.Lat-wantLat) > 1e-9 || math.Abs(c.Lon-wantLon) > 1e-9 {
		t.Fatalf("centroid mismatch: got %+v", c)
	}
}

func TestEnclosingRadius(t *testing.T) {
	center := Point{Lat: 50.0, Lon: 10.0}
	corners := []Point{
		{Lat: 49.9, Lon: 9.9},
		{Lat: 49.9, Lon: 10.1},
		{Lat: 50.1, Lon: 9.9},
		{Lat: 50.1, Lon: 10.1},
	}
	r := EnclosingRadius(center, corners)
	if r <= 0 {
		t.Fatalf("expected positive radius, got %v", r)
	}
}
