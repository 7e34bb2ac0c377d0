// Package remote provides the Remote Access Gateway: the boundary between the
// sync engine and the remote document store. The engine only needs to fetch
// the most recent records of a collection and to commit a batch of documents
// atomically; everything else about the store stays behind this interface.
package remote

import (
	"context"
	"errors"

	"github.com/cephasgm/safety-sync/internal/model"
)

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks -source=gateway.go Gateway

var (
	// ErrUnreachable is returned when the remote store cannot be reached
	// (offline, DNS, connection refused, timeouts).
	ErrUnreachable = errors.New("remote store unreachable")

	// ErrUnauthorized is returned when the remote store rejects credentials
	// or denies the operation.
	ErrUnauthorized = errors.New("remote store rejected credentials")

	// ErrBatchRejected is returned when a batch commit is refused as a whole.
	ErrBatchRejected = errors.New("remote store rejected batch")
)

// FetchSpec describes which records of a domain to fetch.
type FetchSpec struct {
	// Collection is the remote collection holding the domain's records
	Collection string
	// OrderBy is the field records are sorted by
	OrderBy string
	// Ascending sorts oldest first; the default is newest first
	Ascending bool
	// Limit caps the number of records returned; zero means no cap
	Limit int
}

// Gateway is the contract the sync engine requires from the remote store.
type Gateway interface {
	// Fetch returns up to spec.Limit records of spec.Collection in spec order.
	Fetch(ctx context.Context, spec FetchSpec) ([]model.Record, error)

	// CommitBatch inserts all records into collection as one all-or-nothing
	// operation. On error none of the records are visible remotely.
	CommitBatch(ctx context.Context, collection string, records []model.Record) error

	// Ping checks that the remote store is reachable and accepts our credentials.
	Ping(ctx context.Context) error
}
