package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cephasgm/safety-sync/internal/config"
	"github.com/cephasgm/safety-sync/internal/model"
)

// SnapshotKey returns the store key holding the snapshot of a domain.
func SnapshotKey(domainID string) string {
	return config.SnapshotKeyPrefix + domainID
}

// ReadRecords decodes the record set stored under key. It returns ErrNotFound
// when the key is absent and an error wrapping ErrMalformedData when the
// payload is not a JSON array of objects. A JSON null decodes to an empty set;
// null elements inside the array are dropped.
func ReadRecords(ctx context.Context, s Store, key string) ([]model.Record, error) {
	payload, err := s.ReadSet(ctx, key)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var records []model.Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: key %s: %v", ErrMalformedData, key, err)
	}

	kept := records[:0]
	for _, rec := range records {
		if rec != nil {
			kept = append(kept, rec)
		}
	}
	if dropped := len(records) - len(kept); dropped > 0 {
		slog.WarnContext(ctx, "Dropped null entries from record set", "key", key, "dropped", dropped)
	}
	return kept, nil
}

// WriteRecords encodes records as a JSON array and stores them under key.
func WriteRecords(ctx context.Context, s Store, key string, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode records for key %s: %w", key, err)
	}
	return s.WriteSet(ctx, key, payload)
}

// ReadSnapshot returns the last complete snapshot of a domain, or
// ErrNotFound when the domain has never been synced.
func ReadSnapshot(ctx context.Context, s Store, domainID string) (*model.Snapshot, error) {
	payload, err := s.ReadSet(ctx, SnapshotKey(domainID))
	if err != nil {
		return nil, err
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %v", ErrMalformedData, domainID, err)
	}
	return &snapshot, nil
}

// WriteSnapshot overwrites the snapshot of a domain in a single write.
func WriteSnapshot(ctx context.Context, s Store, snapshot *model.Snapshot) error {
	if snapshot == nil {
		return errors.New("snapshot cannot be nil")
	}
	if snapshot.Records == nil {
		snapshot.Records = []model.Record{}
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for domain %s: %w", snapshot.DomainID, err)
	}
	return s.WriteSet(ctx, SnapshotKey(snapshot.DomainID), payload)
}
