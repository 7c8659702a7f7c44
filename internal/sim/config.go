package sim

import (
	"errors"
	"fmt"
	"math"
	"time"

	"neuraldrive/internal/agent"
	"neuraldrive/internal/model"
	"neuraldrive/internal/sensor"
)

var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds every engine parameter. Field tags serve the JSON, YAML and INI
// config loaders.
type Config struct {
	PopulationSize int     `json:"population" yaml:"population" ini:"population"`
	TrafficCount   int     `json:"traffic_count" yaml:"traffic_count" ini:"traffic_count"`
	LaneCount      int     `json:"lane_count" yaml:"lane_count" ini:"lane_count"`
	RoadCenterX    float64 `json:"road_center_x" yaml:"road_center_x" ini:"road_center_x"`
	RoadWidth      float64 `json:"road_width" yaml:"road_width" ini:"road_width"`
	MutationRate   float64 `json:"mutation_rate" yaml:"mutation_rate" ini:"mutation_rate"`
	HiddenNeurons  int     `json:"hidden_neurons" yaml:"hidden_neurons" ini:"hidden_neurons"`

	RayCount  int     `json:"ray_count" yaml:"ray_count" ini:"ray_count"`
	RayLength float64 `json:"ray_length" yaml:"ray_length" ini:"ray_length"`
	RaySpread float64 `json:"ray_spread" yaml:"ray_spread" ini:"ray_spread"`

	CarWidth  float64 `json:"car_width" yaml:"car_width" ini:"car_width"`
	CarHeight float64 `json:"car_height" yaml:"car_height" ini:"car_height"`
	MaxSpeed  float64 `json:"max_speed" yaml:"max_speed" ini:"max_speed"`
	SpawnLane int     `json:"spawn_lane" yaml:"spawn_lane" ini:"spawn_lane"`
	SpawnY    float64 `json:"spawn_y" yaml:"spawn_y" ini:"spawn_y"`

	TrafficSpeedMin  float64 `json:"traffic_speed_min" yaml:"traffic_speed_min" ini:"traffic_speed_min"`
	TrafficSpeedMax  float64 `json:"traffic_speed_max" yaml:"traffic_speed_max" ini:"traffic_speed_max"`
	TrafficLead      float64 `json:"traffic_lead" yaml:"traffic_lead" ini:"traffic_lead"`
	TrafficMinGap    float64 `json:"traffic_min_gap" yaml:"traffic_min_gap" ini:"traffic_min_gap"`
	TrafficGapJitter float64 `json:"traffic_gap_jitter" yaml:"traffic_gap_jitter" ini:"traffic_gap_jitter"`
	PairProbability  float64 `json:"pair_probability" yaml:"pair_probability" ini:"pair_probability"`
	PairOffset       float64 `json:"pair_offset" yaml:"pair_offset" ini:"pair_offset"`

	ExtinctionDelayMS     int64 `json:"extinction_delay_ms" yaml:"extinction_delay_ms" ini:"extinction_delay_ms"`
	AutoResetOnExtinction bool  `json:"auto_reset_on_extinction" yaml:"auto_reset_on_extinction" ini:"auto_reset_on_extinction"`
}

func DefaultConfig() Config {
	s := sensor.DefaultConfig()
	return Config{
		PopulationSize: 100,
		TrafficCount:   50,
		LaneCount:      3,
		RoadCenterX:    150,
		RoadWidth:      270,
		MutationRate:   0.1,
		HiddenNeurons:  6,

		RayCount:  s.RayCount,
		RayLength: s.RayLength,
		RaySpread: s.RaySpread,

		CarWidth:  agent.DefaultWidth,
		CarHeight: agent.DefaultHeight,
		MaxSpeed:  agent.DefaultMaxSpeed,
		SpawnLane: 1,
		SpawnY:    100,

		TrafficSpeedMin:  1.5,
		TrafficSpeedMax:  2.5,
		TrafficLead:      200,
		TrafficMinGap:    180,
		TrafficGapJitter: 220,
		PairProbability:  0.24,
		PairOffset:       40,

		ExtinctionDelayMS:     1500,
		AutoResetOnExtinction: true,
	}
}

func (c Config) Validate() error {
	check := func(ok bool, format string, args ...any) error {
		if ok {
			return nil
		}
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
	}
	finite := func(values ...float64) bool {
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
		return true
	}

	checks := []error{
		check(c.PopulationSize >= 1, "population must be >= 1, got %d", c.PopulationSize),
		check(c.TrafficCount >= 0, "traffic count must be >= 0, got %d", c.TrafficCount),
		check(c.LaneCount >= 1, "lane count must be >= 1, got %d", c.LaneCount),
		check(c.RoadWidth > 0, "road width must be > 0, got %f", c.RoadWidth),
		check(c.MutationRate >= 0 && c.MutationRate <= 1, "mutation rate must be in [0,1], got %f", c.MutationRate),
		check(c.HiddenNeurons >= 1, "hidden neurons must be >= 1, got %d", c.HiddenNeurons),
		check(c.CarWidth > 0 && c.CarHeight > 0, "car size must be positive, got %fx%f", c.CarWidth, c.CarHeight),
		check(c.MaxSpeed > 0, "max speed must be > 0, got %f", c.MaxSpeed),
		check(c.TrafficSpeedMin >= 0 && c.TrafficSpeedMin <= c.TrafficSpeedMax,
			"traffic speed range [%f,%f) is invalid", c.TrafficSpeedMin, c.TrafficSpeedMax),
		check(c.TrafficMinGap >= 0 && c.TrafficGapJitter >= 0, "traffic gaps must be >= 0"),
		check(c.PairProbability >= 0 && c.PairProbability <= 1, "pair probability must be in [0,1], got %f", c.PairProbability),
		check(c.PairOffset >= 0, "pair offset must be >= 0, got %f", c.PairOffset),
		check(c.ExtinctionDelayMS >= 0, "extinction delay must be >= 0, got %d", c.ExtinctionDelayMS),
		check(finite(c.RoadCenterX, c.RoadWidth, c.SpawnY, c.TrafficLead, c.RayLength, c.RaySpread),
			"geometry must be finite"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if err := c.SensorConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) SensorConfig() sensor.Config {
	return sensor.Config{RayCount: c.RayCount, RayLength: c.RayLength, RaySpread: c.RaySpread}
}

// NetworkShape is the neuron count per layer of every agent network.
func (c Config) NetworkShape() []int {
	return []int{c.RayCount, c.HiddenNeurons, 4}
}

func (c Config) ExtinctionDelay() time.Duration {
	return time.Duration(c.ExtinctionDelayMS) * time.Millisecond
}

func (c Config) Snapshot() model.ConfigSnapshot {
	return model.ConfigSnapshot{
		Population:   c.PopulationSize,
		TrafficCount: c.TrafficCount,
		MutationRate: c.MutationRate,
		LaneCount:    c.LaneCount,
	}
}

// structural reports whether moving from c to next needs a rebuilt population.
func (c Config) structural(next Config) bool {
	return c.PopulationSize != next.PopulationSize ||
		c.TrafficCount != next.TrafficCount ||
		c.LaneCount != next.LaneCount ||
		c.RoadCenterX != next.RoadCenterX ||
		c.RoadWidth != next.RoadWidth ||
		c.HiddenNeurons != next.HiddenNeurons ||
		c.RayCount != next.RayCount ||
		c.RayLength != next.RayLength ||
		c.RaySpread != next.RaySpread ||
		c.CarWidth != next.CarWidth ||
		c.CarHeight != next.CarHeight ||
		c.MaxSpeed != next.MaxSpeed
}

// ConfigPatch is a partial update; nil fields are left unchanged.
type ConfigPatch struct {
	PopulationSize        *int     `json:"population,omitempty"`
	TrafficCount          *int     `json:"traffic_count,omitempty"`
	LaneCount             *int     `json:"lane_count,omitempty"`
	MutationRate          *float64 `json:"mutation_rate,omitempty"`
	TrafficSpeedMin       *float64 `json:"traffic_speed_min,omitempty"`
	TrafficSpeedMax       *float64 `json:"traffic_speed_max,omitempty"`
	TrafficMinGap         *float64 `json:"traffic_min_gap,omitempty"`
	TrafficGapJitter      *float64 `json:"traffic_gap_jitter,omitempty"`
	ExtinctionDelayMS     *int64   `json:"extinction_delay_ms,omitempty"`
	AutoResetOnExtinction *bool    `json:"auto_reset_on_extinction,omitempty"`
}

// Apply returns c with the patch applied.
func (p ConfigPatch) Apply(c Config) Config {
	if p.PopulationSize != nil {
		c.PopulationSize = *p.PopulationSize
	}
	if p.TrafficCount != nil {
		c.TrafficCount = *p.TrafficCount
	}
	if p.LaneCount != nil {
		c.LaneCount = *p.LaneCount
	}
	if p.MutationRate != nil {
		c.MutationRate = *p.MutationRate
	}
	if p.TrafficSpeedMin != nil {
		c.TrafficSpeedMin = *p.TrafficSpeedMin
	}
	if p.TrafficSpeedMax != nil {
		c.TrafficSpeedMax = *p.TrafficSpeedMax
	}
	if p.TrafficMinGap != nil {
		c.TrafficMinGap = *p.TrafficMinGap
	}
	if p.TrafficGapJitter != nil {
		c.TrafficGapJitter = *p.TrafficGapJitter
	}
	if p.ExtinctionDelayMS != nil {
		c.ExtinctionDelayMS = *p.ExtinctionDelayMS
	}
	if p.AutoResetOnExtinction != nil {
		c.AutoResetOnExtinction = *p.AutoResetOnExtinction
	}
	return c
}
