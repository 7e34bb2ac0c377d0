package migration

import (
	"time"

	"github.com/cephasgm/safety-sync/internal/model"
)

// Provenance fields stamped on every migrated record.
const (
	FieldMigratedFrom = "migrated_from"
	FieldMigratedAt   = "migrated_at"
	FieldMigratedBy   = "migrated_by"
	FieldOriginalID   = "original_id"
	FieldCreatedAt    = "created_at"
	FieldUpdatedAt    = "updated_at"

	// OriginLocalStorage marks records that came from the on-device store.
	OriginLocalStorage = "local_storage"
)

// stamp returns a copy of rec ready for the remote store. The local _id is
// dropped so the remote store assigns its own; the original identifier
// survives unchanged, type included, as original_id.
func stamp(rec model.Record, actor string, migratedAt time.Time) model.Record {
	out := rec.Clone()
	delete(out, "_id")

	out[FieldMigratedFrom] = OriginLocalStorage
	out[FieldMigratedAt] = migratedAt
	out[FieldMigratedBy] = actor
	if id, ok := rec.RawID(); ok {
		out[FieldOriginalID] = id
	}

	if createdAt, ok := originalCreatedAt(rec); ok {
		out[FieldCreatedAt] = createdAt
	} else {
		out[FieldCreatedAt] = migratedAt
	}
	out[FieldUpdatedAt] = migratedAt

	return out
}

func originalCreatedAt(rec model.Record) (any, bool) {
	for _, key := range []string{FieldCreatedAt, "createdAt"} {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		return v, true
	}
	return nil, false
}
