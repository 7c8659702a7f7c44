// Package brain persists the best trained network between runs.
package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"neuraldrive/internal/model"
	"neuraldrive/internal/nn"
	"neuraldrive/internal/storage"
)

// DefaultKey is the store id of the saved network.
const DefaultKey = "best"

var ErrInvalidNetworkFormat = errors.New("invalid network format")

// Keeper loads and saves the single saved network through a Store.
type Keeper struct {
	store storage.Store
	key   string
	now   func() time.Time
	// shape, when set, is the only layer shape Import accepts.
	shape []int
}

type Option func(*Keeper)

func WithKey(key string) Option {
	return func(k *Keeper) {
		if key != "" {
			k.key = key
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(k *Keeper) {
		if now != nil {
			k.now = now
		}
	}
}

// WithShape makes Import reject networks whose layer sizes differ from shape.
func WithShape(shape []int) Option {
	return func(k *Keeper) {
		k.shape = append([]int(nil), shape...)
	}
}

func NewKeeper(store storage.Store, opts ...Option) *Keeper {
	k := &Keeper{store: store, key: DefaultKey, now: time.Now}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Load returns the saved network, or false when none is stored.
func (k *Keeper) Load(ctx context.Context) (*nn.Network, bool, error) {
	record, ok, err := k.store.GetNetwork(ctx, k.key)
	if err != nil || !ok {
		return nil, false, err
	}
	net, err := FromRecord(record)
	if err != nil {
		return nil, false, err
	}
	return net, true, nil
}

// Save validates net and stores a copy of it. The returned network is the
// stored copy and shares no memory with net.
func (k *Keeper) Save(ctx context.Context, net *nn.Network) (*nn.Network, error) {
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNetworkFormat, err)
	}
	stored := net.Clone()
	record := ToRecord(stored)
	record.ID = k.key
	record.SavedAt = k.now().UTC()
	if err := k.store.SaveNetwork(ctx, record); err != nil {
		return nil, fmt.Errorf("save network: %w", err)
	}
	return stored, nil
}

func (k *Keeper) Clear(ctx context.Context) error {
	_, err := k.store.DeleteNetwork(ctx, k.key)
	return err
}

// Export renders net as an indented versioned record.
func (k *Keeper) Export(net *nn.Network) ([]byte, error) {
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNetworkFormat, err)
	}
	record := ToRecord(net)
	record.ID = k.key
	record.SavedAt = k.now().UTC()
	return json.MarshalIndent(record, "", "  ")
}

// Import decodes an exported network, validates it and saves it. Unversioned
// documents holding only a level list are accepted.
func (k *Keeper) Import(ctx context.Context, data []byte) (*nn.Network, error) {
	net, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if k.shape != nil && !slices.Equal(net.Shape(), k.shape) {
		return nil, fmt.Errorf("%w: shape %v, want %v", ErrInvalidNetworkFormat, net.Shape(), k.shape)
	}
	return k.Save(ctx, net)
}

// Decode parses an exported network without saving it.
func Decode(data []byte) (*nn.Network, error) {
	var record model.NetworkRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNetworkFormat, err)
	}
	unversioned := record.SchemaVersion == 0 && record.CodecVersion == 0
	if !unversioned && (record.SchemaVersion != storage.CurrentSchemaVersion || record.CodecVersion != storage.CurrentCodecVersion) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNetworkFormat, storage.ErrVersionMismatch)
	}
	return FromRecord(record)
}

func ToRecord(net *nn.Network) model.NetworkRecord {
	record := model.NetworkRecord{Levels: make([]model.LevelRecord, 0, len(net.Levels))}
	storage.StampVersion(&record.VersionedRecord)
	for _, level := range net.Snapshot() {
		record.Levels = append(record.Levels, model.LevelRecord{
			Inputs:  level.Inputs,
			Outputs: level.Outputs,
			Biases:  level.Biases,
			Weights: level.Weights,
		})
	}
	return record
}

// FromRecord rebuilds a network and checks that its level chain is well formed.
func FromRecord(record model.NetworkRecord) (*nn.Network, error) {
	net := &nn.Network{Levels: make([]*nn.Level, 0, len(record.Levels))}
	for _, level := range record.Levels {
		weights := make([][]float64, len(level.Weights))
		for i, row := range level.Weights {
			weights[i] = append([]float64(nil), row...)
		}
		net.Levels = append(net.Levels, &nn.Level{
			Inputs:  append([]float64(nil), level.Inputs...),
			Outputs: append([]float64(nil), level.Outputs...),
			Biases:  append([]float64(nil), level.Biases...),
			Weights: weights,
		})
	}
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNetworkFormat, err)
	}
	return net, nil
}
