// Package agent models a single vehicle: kinematics, footprint, damage,
// fitness and the sense-think-act cycle.
package agent

import (
	"fmt"
	"math"

	"neuraldrive/internal/geom"
	"neuraldrive/internal/nn"
	"neuraldrive/internal/road"
	"neuraldrive/internal/sensor"
)

const (
	DefaultWidth        = 30.0
	DefaultHeight       = 50.0
	DefaultMaxSpeed     = 3.0
	DefaultAcceleration = 0.2
	DefaultFriction     = 0.05
	SteerRate           = 0.03

	// DamagePenalty is subtracted from the fitness of a damaged car.
	DamagePenalty = 1000.0
	// LaneDriftWeight scales the distance to the nearest lane centre.
	LaneDriftWeight = 0.5
)

// ControlMode selects who drives the car.
type ControlMode int

const (
	// Manual cars are driven through SetControls.
	Manual ControlMode = iota
	// AI cars are driven by their network outputs.
	AI
	// Dummy cars hold the throttle down and never sense. Traffic uses them.
	Dummy
)

// Fixed is another name for Dummy, the constant-throttle traffic mode.
const Fixed = Dummy

func (m ControlMode) String() string {
	switch m {
	case Manual:
		return "manual"
	case AI:
		return "ai"
	case Dummy:
		return "dummy"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Senses reports whether cars in this mode carry a sensor and a network.
func (m ControlMode) Senses() bool {
	return m == Manual || m == AI
}

type Controls struct {
	Forward bool `json:"forward"`
	Left    bool `json:"left"`
	Right   bool `json:"right"`
	Reverse bool `json:"reverse"`
}

// ControlsFromOutputs maps network outputs in the order
// [forward, left, right, reverse]; any nonzero output presses the control.
func ControlsFromOutputs(outputs []float64) Controls {
	pressed := func(i int) bool {
		return i < len(outputs) && outputs[i] != 0
	}
	return Controls{
		Forward: pressed(0),
		Left:    pressed(1),
		Right:   pressed(2),
		Reverse: pressed(3),
	}
}

type Options struct {
	Width    float64
	Height   float64
	MaxSpeed float64
	Brain    *nn.Network
	Sensor   *sensor.RaySensor
}

type Car struct {
	Position geom.Point
	Heading  float64
	Speed    float64

	Width        float64
	Height       float64
	Acceleration float64
	MaxSpeed     float64
	Friction     float64

	Mode     ControlMode
	Controls Controls
	Damaged  bool
	Fitness  float64

	Brain  *nn.Network
	Sensor *sensor.RaySensor

	footprint geom.Polygon
	obstacles []geom.Polygon
}

func New(x, y float64, mode ControlMode, opts Options) *Car {
	c := &Car{
		Position:     geom.Point{X: x, Y: y},
		Width:        orDefault(opts.Width, DefaultWidth),
		Height:       orDefault(opts.Height, DefaultHeight),
		Acceleration: DefaultAcceleration,
		MaxSpeed:     orDefault(opts.MaxSpeed, DefaultMaxSpeed),
		Friction:     DefaultFriction,
		Mode:         mode,
	}
	if mode.Senses() {
		c.Brain = opts.Brain
		c.Sensor = opts.Sensor
	} else {
		c.Controls.Forward = true
	}
	c.refreshFootprint()
	return c
}

func orDefault(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

// Footprint is the car's current oriented rectangle. Callers must not modify it.
func (c *Car) Footprint() geom.Polygon {
	return c.footprint
}

// SetControls overrides the controls of a manually driven car.
func (c *Car) SetControls(controls Controls) {
	if c.Mode == Manual {
		c.Controls = controls
	}
}

// Update advances the car by one tick against the road and the given traffic.
// Motion and damage only run while the car is intact; sensing, inference and
// fitness run every tick.
func (c *Car) Update(r road.Road, traffic []*Car) {
	if !c.Damaged {
		c.move()
		c.refreshFootprint()
		c.Damaged = c.assessDamage(r.Borders, traffic)
	}

	if c.Sensor != nil {
		c.obstacles = c.obstacles[:0]
		for _, other := range traffic {
			c.obstacles = append(c.obstacles, other.footprint)
		}
		c.Sensor.Update(c.Position, c.Heading, r.Borders, c.obstacles)

		if c.Brain != nil {
			outputs := c.Brain.Activate(c.Sensor.Inputs())
			if c.Mode == AI {
				c.Controls = ControlsFromOutputs(outputs)
			}
		}
	}

	c.updateFitness(r)
}

func (c *Car) move() {
	if c.Controls.Forward {
		c.Speed += c.Acceleration
	}
	if c.Controls.Reverse {
		c.Speed -= c.Acceleration
	}

	c.Speed = nn.Sat(c.Speed, c.MaxSpeed, -c.MaxSpeed/2)

	if c.Speed > 0 {
		c.Speed -= c.Friction
	}
	if c.Speed < 0 {
		c.Speed += c.Friction
	}
	if math.Abs(c.Speed) < c.Friction {
		c.Speed = 0
	}

	if c.Speed != 0 {
		flip := 1.0
		if c.Speed < 0 {
			flip = -1
		}
		if c.Controls.Left {
			c.Heading += SteerRate * flip
		}
		if c.Controls.Right {
			c.Heading -= SteerRate * flip
		}
	}

	c.Position = advance(c.Position, c.Heading, c.Speed)
}

func advance(p geom.Point, heading, speed float64) geom.Point {
	return geom.Point{
		X: p.X - math.Sin(heading)*speed,
		Y: p.Y - math.Cos(heading)*speed,
	}
}

func (c *Car) refreshFootprint() {
	c.footprint = geom.OrientedRect(c.Position, c.Heading, c.Width, c.Height)
}

func (c *Car) assessDamage(borders []geom.Segment, traffic []*Car) bool {
	for _, border := range borders {
		if geom.PolygonsIntersect(c.footprint, border.AsPolygon()) {
			return true
		}
	}
	for _, other := range traffic {
		if geom.PolygonsIntersect(c.footprint, other.footprint) {
			return true
		}
	}
	return false
}

// updateFitness rewards forward progress (decreasing y), penalises distance
// from the nearest lane centre and heavily penalises damage.
func (c *Car) updateFitness(r road.Road) {
	c.Fitness = -c.Position.Y - LaneDriftWeight*r.LaneOffset(c.Position.X)
	if c.Damaged {
		c.Fitness -= DamagePenalty
	}
}

// MoveTo repositions the car without touching damage or fitness; used when
// the road geometry changes or traffic is shifted between generations.
func (c *Car) MoveTo(p geom.Point) {
	c.Position = p
	c.refreshFootprint()
}

// Distance is the forward progress of the car, never negative.
func (c *Car) Distance() float64 {
	if c.Position.Y > 0 {
		return 0
	}
	return -c.Position.Y
}
