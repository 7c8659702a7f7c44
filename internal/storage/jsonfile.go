package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"neuraldrive/internal/model"
)

// JSONFileStore keeps every record in a single JSON document. Writes are
// serialised and replace the file atomically. A file holding a bare array is
// read as a list of reports.
type JSONFileStore struct {
	path string

	mu          sync.Mutex
	initialized bool
}

type jsonDocument struct {
	Networks map[string]model.NetworkRecord `json:"networks"`
	Runs     []model.GenerationReport       `json:"runs"`
}

func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

func (s *JSONFileStore) Path() string {
	return s.path
}

func (s *JSONFileStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("json store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(jsonDocument{}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	s.initialized = true
	return nil
}

func (s *JSONFileStore) SaveNetwork(_ context.Context, record model.NetworkRecord) error {
	return s.update(func(doc *jsonDocument) error {
		if doc.Networks == nil {
			doc.Networks = make(map[string]model.NetworkRecord)
		}
		doc.Networks[record.ID] = record
		return nil
	})
}

func (s *JSONFileStore) GetNetwork(_ context.Context, id string) (model.NetworkRecord, bool, error) {
	doc, err := s.snapshot()
	if err != nil {
		return model.NetworkRecord{}, false, err
	}
	record, ok := doc.Networks[id]
	if !ok {
		return model.NetworkRecord{}, false, nil
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.NetworkRecord{}, false, fmt.Errorf("decode network %s: %w", id, err)
	}
	return record, true, nil
}

func (s *JSONFileStore) DeleteNetwork(_ context.Context, id string) (bool, error) {
	var removed bool
	err := s.update(func(doc *jsonDocument) error {
		_, removed = doc.Networks[id]
		delete(doc.Networks, id)
		return nil
	})
	return removed, err
}

func (s *JSONFileStore) SaveReport(_ context.Context, report model.GenerationReport) error {
	return s.update(func(doc *jsonDocument) error {
		doc.Runs = prependReport(doc.Runs, report)
		return nil
	})
}

func (s *JSONFileStore) GetReport(_ context.Context, id string) (model.GenerationReport, bool, error) {
	doc, err := s.snapshot()
	if err != nil {
		return model.GenerationReport{}, false, err
	}
	for _, report := range doc.Runs {
		if report.ID == id {
			return report, true, nil
		}
	}
	return model.GenerationReport{}, false, nil
}

func (s *JSONFileStore) ListReports(_ context.Context, limit int) ([]model.GenerationReport, error) {
	doc, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	sortNewestFirst(doc.Runs)
	return limitReports(doc.Runs, limit), nil
}

func (s *JSONFileStore) DeleteReport(_ context.Context, id string) (bool, error) {
	var removed bool
	err := s.update(func(doc *jsonDocument) error {
		doc.Runs, removed = removeReport(doc.Runs, id)
		return nil
	})
	return removed, err
}

func (s *JSONFileStore) TrimReports(_ context.Context, keep int) (int, error) {
	var removed int
	err := s.update(func(doc *jsonDocument) error {
		doc.Runs, removed = trimReports(doc.Runs, keep)
		return nil
	})
	return removed, err
}

func (s *JSONFileStore) snapshot() (jsonDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return jsonDocument{}, ErrNotInitialized
	}
	return s.read()
}

func (s *JSONFileStore) update(fn func(doc *jsonDocument) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	doc, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return s.write(doc)
}

func (s *JSONFileStore) read() (jsonDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return jsonDocument{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return jsonDocument{}, nil
	}

	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		runs, arrErr := DecodeReports(data)
		if arrErr != nil {
			return jsonDocument{}, fmt.Errorf("decode %s: %w", s.path, err)
		}
		doc.Runs = runs
	}
	return doc, nil
}

func (s *JSONFileStore) write(doc jsonDocument) error {
	if doc.Networks == nil {
		doc.Networks = map[string]model.NetworkRecord{}
	}
	if doc.Runs == nil {
		doc.Runs = []model.GenerationReport{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
