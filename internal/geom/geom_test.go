package geom

import (
	"math"
	"testing"
)

func TestSegmentsIntersectCrossing(t *testing.T) {
	s1 := Segment{A: Point{X: 0, Y: 0}, B: Point{X: 10, Y: 0}}
	s2 := Segment{A: Point{X: 4, Y: -5}, B: Point{X: 4, Y: 5}}

	hit, ok := SegmentsIntersect(s1, s2)
	if !ok {
		t.Fatal("expected intersection")
	}
	if math.Abs(hit.Point.X-4) > 1e-9 || math.Abs(hit.Point.Y) > 1e-9 {
		t.Fatalf("unexpected point: %+v", hit.Point)
	}
	if math.Abs(hit.Offset-0.4) > 1e-9 {
		t.Fatalf("unexpected offset: got=%f want=0.4", hit.Offset)
	}
}

func TestSegmentsIntersectSymmetric(t *testing.T) {
	tests := []struct {
		name string
		s1   Segment
		s2   Segment
		hit  bool
	}{
		{
			name: "cross",
			s1:   Segment{A: Point{X: 0, Y: 0}, B: Point{X: 10, Y: 10}},
			s2:   Segment{A: Point{X: 0, Y: 10}, B: Point{X: 10, Y: 0}},
			hit:  true,
		},
		{
			name: "touching-endpoint",
			s1:   Segment{A: Point{X: 0, Y: 0}, B: Point{X: 5, Y: 0}},
			s2:   Segment{A: Point{X: 5, Y: -1}, B: Point{X: 5, Y: 1}},
			hit:  true,
		},
		{
			name: "short-of-each-other",
			s1:   Segment{A: Point{X: 0, Y: 0}, B: Point{X: 3, Y: 0}},
			s2:   Segment{A: Point{X: 5, Y: -1}, B: Point{X: 5, Y: 1}},
			hit:  false,
		},
		{
			name: "parallel",
			s1:   Segment{A: Point{X: 0, Y: 0}, B: Point{X: 10, Y: 0}},
			s2:   Segment{A: Point{X: 0, Y: 1}, B: Point{X: 10, Y: 1}},
			hit:  false,
		},
		{
			name: "coincident",
			s1:   Segment{A: Point{X: 0, Y: 0}, B: Point{X: 10, Y: 0}},
			s2:   Segment{A: Point{X: 2, Y: 0}, B: Point{X: 8, Y: 0}},
			hit:  false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, forward := SegmentsIntersect(tc.s1, tc.s2)
			_, backward := SegmentsIntersect(tc.s2, tc.s1)
			if forward != tc.hit || backward != tc.hit {
				t.Fatalf("unexpected hit result: forward=%t backward=%t want=%t", forward, backward, tc.hit)
			}
		})
	}
}

func TestSegmentsIntersectOffsetMeasuredAlongFirst(t *testing.T) {
	s1 := Segment{A: Point{X: 0, Y: 0}, B: Point{X: 10, Y: 0}}
	s2 := Segment{A: Point{X: 2, Y: -8}, B: Point{X: 2, Y: 2}}

	a, _ := SegmentsIntersect(s1, s2)
	b, _ := SegmentsIntersect(s2, s1)
	if math.Abs(a.Offset-0.2) > 1e-9 {
		t.Fatalf("unexpected offset along s1: %f", a.Offset)
	}
	if math.Abs(b.Offset-0.8) > 1e-9 {
		t.Fatalf("unexpected offset along s2: %f", b.Offset)
	}
}

func rect(x0, y0, x1, y1 float64) Polygon {
	return Polygon{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func TestPolygonsIntersect(t *testing.T) {
	if PolygonsIntersect(rect(0, 0, 10, 10), rect(20, 0, 30, 10)) {
		t.Fatal("expected separated rectangles not to intersect")
	}
	if !PolygonsIntersect(rect(0, 0, 10, 10), rect(5, 5, 15, 15)) {
		t.Fatal("expected overlapping rectangles to intersect")
	}
}

func TestPolygonIntersectsSegmentAsPolygon(t *testing.T) {
	border := Segment{A: Point{X: 5, Y: -100}, B: Point{X: 5, Y: 100}}
	if !PolygonsIntersect(rect(0, 0, 10, 10), border.AsPolygon()) {
		t.Fatal("expected border to cross rectangle")
	}
	if PolygonsIntersect(rect(20, 0, 30, 10), border.AsPolygon()) {
		t.Fatal("expected border to miss rectangle")
	}
}

func TestOrientedRectAxisAligned(t *testing.T) {
	poly := OrientedRect(Point{X: 100, Y: 100}, 0, 30, 50)
	if len(poly) != 4 {
		t.Fatalf("expected 4 corners, got %d", len(poly))
	}
	for _, p := range poly {
		if math.Abs(math.Abs(p.X-100)-15) > 1e-9 || math.Abs(math.Abs(p.Y-100)-25) > 1e-9 {
			t.Fatalf("unexpected corner: %+v", p)
		}
	}
}

func TestLerp(t *testing.T) {
	if got := Lerp(2, 6, 0.25); got != 3 {
		t.Fatalf("unexpected lerp: %f", got)
	}
	if got := Lerp(-1, 1, 0); got != -1 {
		t.Fatalf("unexpected lerp at 0: %f", got)
	}
}
