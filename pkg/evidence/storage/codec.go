package storage

import (
	"encoding/json"
	"fmt"

	"nanogov/governor/pkg/evidence"
)

// encodeTrail serializes the JSON columns of a record.
func encodeTrail(record *evidence.Record) (entries, anomalies []byte, err error) {
	e := record.Entries
	if e == nil {
		e = []evidence.EntryRecord{}
	}
	a := record.Anomalies
	if a == nil {
		a = []string{}
	}
	if entries, err = json.Marshal(e); err != nil {
		return nil, nil, fmt.Errorf("encode entries: %w", err)
	}
	if anomalies, err = json.Marshal(a); err != nil {
		return nil, nil, fmt.Errorf("encode anomalies: %w", err)
	}
	return entries, anomalies, nil
}

func decodeTrail(record *evidence.Record, entries, anomalies []byte) error {
	if len(entries) > 0 {
		if err := json.Unmarshal(entries, &record.Entries); err != nil {
			return fmt.Errorf("decode entries: %w", err)
		}
	}
	if len(anomalies) > 0 {
		if err := json.Unmarshal(anomalies, &record.Anomalies); err != nil {
			return fmt.Errorf("decode anomalies: %w", err)
		}
	}
	return nil
}
