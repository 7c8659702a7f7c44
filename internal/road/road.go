package road

import (
	"errors"
	"fmt"
	"math"

	"neuraldrive/internal/geom"
)

// Reach is how far the borders extend along the travel axis in both
// directions. It is far beyond any position an agent reaches in practice.
const Reach = 1e6

var ErrInvalidConfig = errors.New("invalid road config")

// Road is a straight multi-lane road running along the Y axis. It is immutable;
// a resize builds a new Road.
type Road struct {
	CenterX   float64
	Width     float64
	LaneCount int

	Left    float64
	Right   float64
	Borders []geom.Segment
}

func New(centerX, width float64, laneCount int) (Road, error) {
	if laneCount < 1 {
		return Road{}, fmt.Errorf("%w: lane count must be >= 1, got %d", ErrInvalidConfig, laneCount)
	}
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return Road{}, fmt.Errorf("%w: width must be > 0, got %f", ErrInvalidConfig, width)
	}

	left := centerX - width/2
	right := centerX + width/2
	top, bottom := -Reach, Reach

	return Road{
		CenterX:   centerX,
		Width:     width,
		LaneCount: laneCount,
		Left:      left,
		Right:     right,
		Borders: []geom.Segment{
			{A: geom.Point{X: left, Y: top}, B: geom.Point{X: left, Y: bottom}},
			{A: geom.Point{X: right, Y: top}, B: geom.Point{X: right, Y: bottom}},
		},
	}, nil
}

func (r Road) LaneWidth() float64 {
	return r.Width / float64(r.LaneCount)
}

// LaneCenter returns the x coordinate of a lane centre. Out of range indexes
// clamp to the nearest lane.
func (r Road) LaneCenter(index int) float64 {
	if index < 0 {
		index = 0
	}
	if index > r.LaneCount-1 {
		index = r.LaneCount - 1
	}
	return r.Left + r.LaneWidth()*(float64(index)+0.5)
}

// LaneCenters lists every lane centre from left to right.
func (r Road) LaneCenters() []float64 {
	out := make([]float64, r.LaneCount)
	for i := range out {
		out[i] = r.LaneCenter(i)
	}
	return out
}

// LaneIndex returns the lane containing x, clamped to the road.
func (r Road) LaneIndex(x float64) int {
	index := int(math.Floor((x - r.Left) / r.LaneWidth()))
	if index < 0 {
		return 0
	}
	if index > r.LaneCount-1 {
		return r.LaneCount - 1
	}
	return index
}

// LaneOffset is the distance from x to the nearest lane centre.
func (r Road) LaneOffset(x float64) float64 {
	best := math.Inf(1)
	for i := 0; i < r.LaneCount; i++ {
		if d := math.Abs(x - r.LaneCenter(i)); d < best {
			best = d
		}
	}
	return best
}
