// Package geom holds the 2D primitives shared by sensing and collision.
package geom

import "math"

// parallelEpsilon guards the intersection denominator against parallel and
// coincident segments.
const parallelEpsilon = 1e-12

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is a road border or a sensor ray running from A to B.
type Segment struct {
	A Point `json:"a"`
	B Point `json:"b"`
}

// Polygon is an ordered vertex list; edges wrap from the last vertex to the first.
type Polygon []Point

// Intersection is a hit along a segment. Offset is the fraction of the first
// segment travelled before the hit.
type Intersection struct {
	Point  Point   `json:"point"`
	Offset float64 `json:"offset"`
}

// Lerp returns a + (b-a)*t.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func LerpPoint(a, b Point, t float64) Point {
	return Point{X: Lerp(a.X, b.X, t), Y: Lerp(a.Y, b.Y, t)}
}

// SegmentsIntersect solves the 2x2 system for the parameters along s1 and s2.
// A hit is reported only when both lie in [0, 1].
func SegmentsIntersect(s1, s2 Segment) (Intersection, bool) {
	a, b, c, d := s1.A, s1.B, s2.A, s2.B

	tTop := (d.X-c.X)*(a.Y-c.Y) - (d.Y-c.Y)*(a.X-c.X)
	uTop := (c.Y-a.Y)*(a.X-b.X) - (c.X-a.X)*(a.Y-b.Y)
	bottom := (d.Y-c.Y)*(b.X-a.X) - (d.X-c.X)*(b.Y-a.Y)

	if math.Abs(bottom) < parallelEpsilon {
		return Intersection{}, false
	}

	t := tTop / bottom
	u := uTop / bottom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Intersection{}, false
	}
	return Intersection{Point: LerpPoint(a, b, t), Offset: t}, true
}

// Edges returns the closed edge list of the polygon. A two-point polygon
// yields the segment in both directions, which is harmless for hit tests.
func (p Polygon) Edges() []Segment {
	if len(p) < 2 {
		return nil
	}
	edges := make([]Segment, 0, len(p))
	for i := range p {
		edges = append(edges, Segment{A: p[i], B: p[(i+1)%len(p)]})
	}
	return edges
}

// Clone returns an independent copy of the vertex list.
func (p Polygon) Clone() Polygon {
	if p == nil {
		return nil
	}
	out := make(Polygon, len(p))
	copy(out, p)
	return out
}

// AsPolygon treats a segment as a degenerate polygon so borders can be tested
// with PolygonsIntersect.
func (s Segment) AsPolygon() Polygon {
	return Polygon{s.A, s.B}
}

// PolygonsIntersect reports whether any edge of p1 crosses any edge of p2.
func PolygonsIntersect(p1, p2 Polygon) bool {
	for i := range p1 {
		e1 := Segment{A: p1[i], B: p1[(i+1)%len(p1)]}
		for j := range p2 {
			e2 := Segment{A: p2[j], B: p2[(j+1)%len(p2)]}
			if _, ok := SegmentsIntersect(e1, e2); ok {
				return true
			}
		}
	}
	return false
}

// OrientedRect builds the four corners of a width x height rectangle centred on
// center and rotated by heading. Heading 0 faces -Y.
func OrientedRect(center Point, heading, width, height float64) Polygon {
	radius := math.Hypot(width, height) / 2
	alpha := math.Atan2(width, height)
	corner := func(angle float64) Point {
		return Point{
			X: center.X - math.Sin(angle)*radius,
			Y: center.Y - math.Cos(angle)*radius,
		}
	}
	return Polygon{
		corner(heading - alpha),
		corner(heading + alpha),
		corner(math.Pi + heading - alpha),
		corner(math.Pi + heading + alpha),
	}
}
