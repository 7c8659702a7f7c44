// Package sensor implements the ray-cast perception used by learning agents.
package sensor

import (
	"fmt"
	"math"

	"neuraldrive/internal/geom"
)

type Config struct {
	RayCount  int
	RayLength float64
	// RaySpread is the field of view in radians, centred on the heading.
	RaySpread float64
}

func DefaultConfig() Config {
	return Config{
		RayCount:  5,
		RayLength: 150,
		RaySpread: math.Pi / 2,
	}
}

func (c Config) Validate() error {
	if c.RayCount < 1 {
		return fmt.Errorf("ray count must be >= 1, got %d", c.RayCount)
	}
	if c.RayLength <= 0 {
		return fmt.Errorf("ray length must be > 0, got %f", c.RayLength)
	}
	if c.RaySpread < 0 {
		return fmt.Errorf("ray spread must be >= 0, got %f", c.RaySpread)
	}
	return nil
}

// Reading is the nearest hit along one ray. Offset runs from 0 at the agent to
// 1 at the ray's end; Hit is false when nothing was in range.
type Reading struct {
	Hit    bool       `json:"hit"`
	Point  geom.Point `json:"point"`
	Offset float64    `json:"offset"`
}

// Input converts the reading to a network input: closer hits score higher and
// no hit scores 0.
func (r Reading) Input() float64 {
	if !r.Hit {
		return 0
	}
	return 1 - r.Offset
}

type RaySensor struct {
	cfg      Config
	rays     []geom.Segment
	readings []Reading
}

func New(cfg Config) (*RaySensor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RaySensor{
		cfg:      cfg,
		rays:     make([]geom.Segment, cfg.RayCount),
		readings: make([]Reading, cfg.RayCount),
	}, nil
}

func (s *RaySensor) Config() Config {
	return s.cfg
}

func (s *RaySensor) RayCount() int {
	return s.cfg.RayCount
}

// Update recasts every ray from origin and keeps the nearest hit per ray
// among the borders and obstacle edges.
func (s *RaySensor) Update(origin geom.Point, heading float64, borders []geom.Segment, obstacles []geom.Polygon) {
	s.castRays(origin, heading)
	for i, ray := range s.rays {
		s.readings[i] = nearestHit(ray, borders, obstacles)
	}
}

func (s *RaySensor) castRays(origin geom.Point, heading float64) {
	half := s.cfg.RaySpread / 2
	for i := range s.rays {
		t := 0.5
		if s.cfg.RayCount > 1 {
			t = float64(i) / float64(s.cfg.RayCount-1)
		}
		angle := geom.Lerp(half, -half, t) + heading
		s.rays[i] = geom.Segment{
			A: origin,
			B: geom.Point{
				X: origin.X - math.Sin(angle)*s.cfg.RayLength,
				Y: origin.Y - math.Cos(angle)*s.cfg.RayLength,
			},
		}
	}
}

func nearestHit(ray geom.Segment, borders []geom.Segment, obstacles []geom.Polygon) Reading {
	best := Reading{}
	consider := func(hit geom.Intersection) {
		if !best.Hit || hit.Offset < best.Offset {
			best = Reading{Hit: true, Point: hit.Point, Offset: hit.Offset}
		}
	}

	for _, border := range borders {
		if hit, ok := geom.SegmentsIntersect(ray, border); ok {
			consider(hit)
		}
	}
	for _, poly := range obstacles {
		for _, edge := range poly.Edges() {
			if hit, ok := geom.SegmentsIntersect(ray, edge); ok {
				consider(hit)
			}
		}
	}
	return best
}

// Readings returns a copy of the latest readings.
func (s *RaySensor) Readings() []Reading {
	return append([]Reading(nil), s.readings...)
}

// Rays returns a copy of the latest ray segments.
func (s *RaySensor) Rays() []geom.Segment {
	return append([]geom.Segment(nil), s.rays...)
}

// Inputs converts the latest readings into network inputs.
func (s *RaySensor) Inputs() []float64 {
	out := make([]float64, len(s.readings))
	for i, reading := range s.readings {
		out[i] = reading.Input()
	}
	return out
}
