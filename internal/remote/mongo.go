package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cephasgm/safety-sync/internal/model"
)

// MongoGateway implements Gateway on top of a DocumentStore.
type MongoGateway struct {
	store   DocumentStore
	timeout time.Duration
}

// GatewayOption configures a MongoGateway
type GatewayOption func(*MongoGateway)

// WithCallTimeout bounds every gateway call. Zero disables the bound.
func WithCallTimeout(timeout time.Duration) GatewayOption {
	return func(g *MongoGateway) {
		g.timeout = timeout
	}
}

// NewMongoGateway creates a new MongoGateway.
func NewMongoGateway(store DocumentStore, opts ...GatewayOption) *MongoGateway {
	g := &MongoGateway{store: store}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ Gateway = (*MongoGateway)(nil)

func (g *MongoGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// Fetch returns the records of spec.Collection sorted by spec.OrderBy,
// newest first unless spec.Ascending is set.
func (g *MongoGateway) Fetch(ctx context.Context, spec FetchSpec) ([]model.Record, error) {
	if spec.Collection == "" {
		return nil, errors.New("fetch spec requires a collection")
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	findOpts := options.Find()
	if spec.OrderBy != "" {
		direction := -1
		if spec.Ascending {
			direction = 1
		}
		findOpts.SetSort(bson.D{{Key: spec.OrderBy, Value: direction}})
	}
	if spec.Limit > 0 {
		findOpts.SetLimit(int64(spec.Limit))
	}

	docs, err := g.store.Find(ctx, spec.Collection, bson.D{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection %s: %w", spec.Collection, classify(err, nil))
	}

	records := make([]model.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, toRecord(doc))
	}
	return records, nil
}

// CommitBatch inserts records into collection in a single transaction.
// An empty batch is a no-op.
func (g *MongoGateway) CommitBatch(ctx context.Context, collection string, records []model.Record) error {
	if collection == "" {
		return errors.New("commit requires a collection")
	}
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	docs := make([]any, 0, len(records))
	for _, r := range records {
		docs = append(docs, map[string]any(r))
	}

	if err := g.store.InsertManyAtomic(ctx, collection, docs); err != nil {
		return fmt.Errorf("failed to commit %d records to %s: %w", len(records), collection, classify(err, ErrBatchRejected))
	}
	return nil
}

// Ping checks that the remote store is reachable.
func (g *MongoGateway) Ping(ctx context.Context) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		return classify(err, ErrUnreachable)
	}
	return nil
}

// toRecord converts a decoded document into a JSON friendly record.
func toRecord(doc bson.M) model.Record {
	record := make(model.Record, len(doc))
	for k, v := range doc {
		record[k] = normalize(v)
	}
	return record
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return map[string]any(toRecord(t))
	case map[string]any:
		return map[string]any(toRecord(t))
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case primitive.Decimal128:
		return t.String()
	default:
		return v
	}
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = normalize(v)
	}
	return out
}
