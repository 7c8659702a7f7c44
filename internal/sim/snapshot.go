package sim

import (
	"neuraldrive/internal/agent"
	"neuraldrive/internal/geom"
	"neuraldrive/internal/nn"
	"neuraldrive/internal/sensor"
)

type RoadView struct {
	Left        float64        `json:"left"`
	Right       float64        `json:"right"`
	Borders     []geom.Segment `json:"borders"`
	LaneCenters []float64      `json:"lane_centers"`
}

type CarView struct {
	Polygon  geom.Polygon `json:"polygon"`
	Position geom.Point   `json:"position"`
	Heading  float64      `json:"heading"`
	Speed    float64      `json:"speed"`
	Damaged  bool         `json:"damaged"`
	Fitness  float64      `json:"fitness"`
}

// Snapshot is a read-only copy of the scene for renderers. It shares no
// memory with the engine.
type Snapshot struct {
	Generation     int              `json:"generation"`
	Ticks          int              `json:"ticks"`
	Alive          int              `json:"alive"`
	AlivePeak      int              `json:"alive_peak"`
	BestDistance   float64          `json:"best_distance"`
	AverageFitness float64          `json:"average_fitness"`
	Road           RoadView         `json:"road"`
	Traffic        []CarView        `json:"traffic"`
	Agents         []CarView        `json:"agents"`
	BestIndex      int              `json:"best_index"`
	Rays           []geom.Segment   `json:"rays,omitempty"`
	Readings       []sensor.Reading `json:"readings,omitempty"`
	Network        []nn.Level       `json:"network,omitempty"`
}

func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Generation:     e.generation,
		Ticks:          e.stats.Ticks,
		Alive:          e.stats.Alive,
		AlivePeak:      e.stats.AlivePeak,
		BestDistance:   e.stats.BestDistance,
		AverageFitness: e.stats.AverageFitness,
		Road: RoadView{
			Left:        e.road.Left,
			Right:       e.road.Right,
			Borders:     append([]geom.Segment(nil), e.road.Borders...),
			LaneCenters: e.road.LaneCenters(),
		},
		Traffic:   viewCars(e.traffic),
		Agents:    viewCars(e.agents),
		BestIndex: e.best,
	}

	if best, ok := e.Best(); ok {
		if best.Sensor != nil {
			snap.Rays = best.Sensor.Rays()
			snap.Readings = best.Sensor.Readings()
		}
		if best.Brain != nil {
			snap.Network = best.Brain.Snapshot()
		}
	}
	return snap
}

func viewCars(cars []*agent.Car) []CarView {
	out := make([]CarView, len(cars))
	for i, car := range cars {
		out[i] = CarView{
			Polygon:  car.Footprint().Clone(),
			Position: car.Position,
			Heading:  car.Heading,
			Speed:    car.Speed,
			Damaged:  car.Damaged,
			Fitness:  car.Fitness,
		}
	}
	return out
}
