package remote

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ---- Abstractions for Testability ----

// DocumentStore is the minimal set of document store operations the gateway
// is built on.
type DocumentStore interface {
	// Find returns all documents of collection matching filter.
	Find(ctx context.Context, collection string, filter any, opts *options.FindOptions) ([]bson.M, error)

	// InsertManyAtomic inserts docs into collection inside one transaction.
	InsertManyAtomic(ctx context.Context, collection string, docs []any) error

	// Ping checks the connection to the primary.
	Ping(ctx context.Context) error
}

// mongoStore adapts *mongo.Client to DocumentStore.
type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore creates a DocumentStore over the named database of client.
func NewMongoStore(client *mongo.Client, database string) DocumentStore {
	return &mongoStore{
		client: client,
		db:     client.Database(database),
	}
}

func (s *mongoStore) Find(
	ctx context.Context,
	collection string,
	filter any,
	opts *options.FindOptions,
) ([]bson.M, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to perform Find: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

func (s *mongoStore) InsertManyAtomic(ctx context.Context, collection string, docs []any) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	coll := s.db.Collection(collection)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return coll.InsertMany(sc, docs)
	})
	if err != nil {
		return fmt.Errorf("failed to perform InsertMany: %w", err)
	}
	return nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}
