package storage

import (
	"encoding/json"
	"errors"

	"neuraldrive/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// StampVersion sets the current schema and codec versions on a record.
func StampVersion(v *model.VersionedRecord) {
	v.SchemaVersion = CurrentSchemaVersion
	v.CodecVersion = CurrentCodecVersion
}

func EncodeNetwork(record model.NetworkRecord) ([]byte, error) {
	return json.Marshal(record)
}

func DecodeNetwork(data []byte) (model.NetworkRecord, error) {
	var record model.NetworkRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.NetworkRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.NetworkRecord{}, err
	}
	return record, nil
}

func EncodeReport(report model.GenerationReport) ([]byte, error) {
	return json.Marshal(report)
}

// DecodeReport accepts reports in the run-history wire format; reports carry
// no version stamp.
func DecodeReport(data []byte) (model.GenerationReport, error) {
	var report model.GenerationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return model.GenerationReport{}, err
	}
	return report, nil
}

func EncodeReports(reports []model.GenerationReport) ([]byte, error) {
	if reports == nil {
		reports = []model.GenerationReport{}
	}
	return json.MarshalIndent(reports, "", "  ")
}

func DecodeReports(data []byte) ([]model.GenerationReport, error) {
	var reports []model.GenerationReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
