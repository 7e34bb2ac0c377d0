// Package model contains the data types shared by the cache, the remote
// gateway, the sync scheduler and the migration coordinator.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Record is a single JSON-serializable safety record (an incident, a training
// entry, a PPE issue, ...). Its shape is owned by the business domain.
type Record map[string]any

// RawID returns the record identifier as stored, looking at "id" and then
// "_id".
func (r Record) RawID() (any, bool) {
	for _, key := range []string{"id", "_id"} {
		if v, ok := r[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// ID returns the record identifier as a string, or an empty string when the
// record has none. Numeric identifiers, such as millisecond timestamps
// decoded from JSON, are rendered without exponent.
func (r Record) ID() string {
	v, ok := r.RawID()
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32)
	case json.Number:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Snapshot is the complete local copy of a domain after a successful sync.
// Snapshots are replaced wholesale, never merged.
type Snapshot struct {
	DomainID   string    `json:"domainId"`
	Records    []Record  `json:"records"`
	CapturedAt time.Time `json:"capturedAt"`
}
