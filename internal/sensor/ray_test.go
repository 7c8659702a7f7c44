package sensor

import (
	"math"
	"testing"

	"neuraldrive/internal/geom"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no-rays", cfg: Config{RayCount: 0, RayLength: 100, RaySpread: 1}},
		{name: "zero-length", cfg: Config{RayCount: 3, RayLength: 0, RaySpread: 1}},
		{name: "negative-spread", cfg: Config{RayCount: 3, RayLength: 10, RaySpread: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestNoObstaclesYieldsEmptyReadings(t *testing.T) {
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new sensor: %v", err)
	}
	s.Update(geom.Point{X: 0, Y: 0}, 0, nil, nil)

	for i, reading := range s.Readings() {
		if reading.Hit {
			t.Fatalf("ray %d: unexpected hit %+v", i, reading)
		}
	}
	for i, input := range s.Inputs() {
		if input != 0 {
			t.Fatalf("input %d: expected 0, got %f", i, input)
		}
	}
}

func TestRaysFanAcrossSpread(t *testing.T) {
	s, err := New(Config{RayCount: 3, RayLength: 100, RaySpread: math.Pi / 2})
	if err != nil {
		t.Fatalf("new sensor: %v", err)
	}
	s.Update(geom.Point{X: 0, Y: 0}, 0, nil, nil)

	rays := s.Rays()
	// Middle ray points straight ahead (-Y).
	if math.Abs(rays[1].B.X) > 1e-9 || math.Abs(rays[1].B.Y+100) > 1e-9 {
		t.Fatalf("unexpected centre ray end: %+v", rays[1].B)
	}
	// First ray leans left (-X), last leans right (+X).
	if rays[0].B.X >= 0 || rays[2].B.X <= 0 {
		t.Fatalf("unexpected fan: first=%+v last=%+v", rays[0].B, rays[2].B)
	}
}

func TestSingleRayPointsAlongHeading(t *testing.T) {
	s, err := New(Config{RayCount: 1, RayLength: 10, RaySpread: math.Pi})
	if err != nil {
		t.Fatalf("new sensor: %v", err)
	}
	s.Update(geom.Point{X: 5, Y: 5}, 0, nil, nil)
	end := s.Rays()[0].B
	if math.Abs(end.X-5) > 1e-9 || math.Abs(end.Y+5) > 1e-9 {
		t.Fatalf("unexpected single ray end: %+v", end)
	}
}

func TestNearestHitWins(t *testing.T) {
	s, err := New(Config{RayCount: 1, RayLength: 100, RaySpread: 0})
	if err != nil {
		t.Fatalf("new sensor: %v", err)
	}
	far := geom.Segment{A: geom.Point{X: -10, Y: -80}, B: geom.Point{X: 10, Y: -80}}
	near := geom.Polygon{
		{X: -5, Y: -30}, {X: 5, Y: -30}, {X: 5, Y: -40}, {X: -5, Y: -40},
	}
	s.Update(geom.Point{X: 0, Y: 0}, 0, []geom.Segment{far}, []geom.Polygon{near})

	reading := s.Readings()[0]
	if !reading.Hit {
		t.Fatal("expected hit")
	}
	if math.Abs(reading.Offset-0.3) > 1e-9 {
		t.Fatalf("expected nearest offset 0.3, got %f", reading.Offset)
	}
	if got := s.Inputs()[0]; math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("expected input 0.7, got %f", got)
	}
}

func TestReadingInput(t *testing.T) {
	if got := (Reading{}).Input(); got != 0 {
		t.Fatalf("expected 0 for no hit, got %f", got)
	}
	if got := (Reading{Hit: true, Offset: 0}).Input(); got != 1 {
		t.Fatalf("expected 1 for touching hit, got %f", got)
	}
	if got := (Reading{Hit: true, Offset: 1}).Input(); got != 0 {
		t.Fatalf("expected 0 at ray end, got %f", got)
	}
}
