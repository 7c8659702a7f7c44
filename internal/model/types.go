package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// NetworkRecord is the persisted form of a trained network.
type NetworkRecord struct {
	VersionedRecord
	ID      string        `json:"id"`
	Levels  []LevelRecord `json:"levels"`
	SavedAt time.Time     `json:"saved_at"`
}

type LevelRecord struct {
	Inputs  []float64   `json:"inputs"`
	Outputs []float64   `json:"outputs"`
	Biases  []float64   `json:"biases"`
	Weights [][]float64 `json:"weights"`
}

// ResetReason tells why a generation ended.
type ResetReason string

const (
	ReasonManual      ResetReason = "manual"
	ReasonExtinction  ResetReason = "extinction"
	ReasonSettings    ResetReason = "settings"
	ReasonBrainImport ResetReason = "brain-import"
)

func (r ResetReason) Valid() bool {
	switch r {
	case ReasonManual, ReasonExtinction, ReasonSettings, ReasonBrainImport:
		return true
	default:
		return false
	}
}

// ConfigSnapshot is the part of the engine configuration recorded with every
// generation report.
type ConfigSnapshot struct {
	Population   int     `json:"population"`
	TrafficCount int     `json:"trafficCount"`
	MutationRate float64 `json:"mutationRate"`
	LaneCount    int     `json:"laneCount"`
}

// GenerationReport summarises one finished generation. Field names follow the
// run-history service wire format.
type GenerationReport struct {
	ID             string         `json:"id"`
	Generation     int            `json:"generation"`
	BestDistance   float64        `json:"bestDistance"`
	AverageFitness float64        `json:"averageFitness"`
	AlivePeak      int            `json:"alivePeak"`
	DurationMS     int64          `json:"durationMs"`
	Reason         ResetReason    `json:"reason"`
	EndedAt        time.Time      `json:"endedAt"`
	Config         ConfigSnapshot `json:"config"`
}
