package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cephasgm/safety-sync/internal/config"
)

const defaultConnectMaxElapsed = time.Minute

// Dial creates a client without contacting the deployment. The driver
// connects lazily, so Dial succeeds while offline.
func Dial(cfg *config.RemoteConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("remote.uri is required")
	}
	clientOpts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(context.Background(), clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}
	return client, nil
}

func clientOptions(cfg *config.RemoteConfig) (*options.ClientOptions, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetTimeout(cfg.GetTimeout()).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	if cfg.Username != "" {
		password, err := cfg.GetPassword()
		if err != nil {
			return nil, err
		}
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: password,
		})
	}
	return opts, nil
}

// Connect establishes a connection to the remote MongoDB deployment,
// retrying with exponential backoff until the first successful ping or
// until maxElapsed passes. Authentication failures are not retried.
func Connect(ctx context.Context, cfg *config.RemoteConfig, maxElapsed time.Duration) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("remote.uri is required")
	}
	if maxElapsed <= 0 {
		maxElapsed = defaultConnectMaxElapsed
	}

	clientOpts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	attempt := 0
	operation := func() (*mongo.Client, error) {
		attempt++
		client, err := mongo.Connect(ctx, clientOpts)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to connect to MongoDB: %w", err))
		}

		pingCtx, cancel := context.WithTimeout(ctx, cfg.GetTimeout())
		defer cancel()
		if err := NewMongoStore(client, cfg.Database).Ping(pingCtx); err != nil {
			_ = client.Disconnect(context.Background())
			err = classify(err, nil)
			slog.Warn("MongoDB ping failed", "attempt", attempt, "error", err)
			if isUnauthorized(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return client, nil
	}

	client, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote store: %w", err)
	}

	slog.Info("Successfully established connection to MongoDB", "database", cfg.Database, "attempts", attempt)
	return client, nil
}
