package usersync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/quickcart/usersync/internal/dbconn"
)

// MongoConfig bounds the client pool and timeouts.
type MongoConfig struct {
	URI                    string
	MaxPoolSize            uint64
	ServerSelectionTimeout time.Duration
	SocketTimeout          time.Duration
	// LogCommands emits every command at debug level.
	LogCommands bool
}

// DialMongo returns a dial function that connects and pings the primary,
// so an unreachable server fails the dial instead of the first query.
func DialMongo(cfg MongoConfig, logger *slog.Logger) dbconn.DialFunc[*mongo.Client] {
	return func(ctx context.Context) (*mongo.Client, error) {
		opts := options.Client().
			ApplyURI(cfg.URI).
			SetMaxPoolSize(cfg.MaxPoolSize).
			SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
			SetSocketTimeout(cfg.SocketTimeout)
		if cfg.LogCommands {
			opts.SetMonitor(commandLogger(logger))
		}

		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("mongo ping: %w", err)
		}
		return client, nil
	}
}

// CloseMongo disconnects a client.
func CloseMongo(ctx context.Context, client *mongo.Client) error {
	return client.Disconnect(ctx)
}

func commandLogger(logger *slog.Logger) *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(ctx context.Context, e *event.CommandStartedEvent) {
			logger.DebugContext(ctx, "mongo command",
				slog.String("command", e.CommandName),
				slog.String("database", e.DatabaseName),
				slog.Int64("requestId", e.RequestID),
			)
		},
		Failed: func(ctx context.Context, e *event.CommandFailedEvent) {
			logger.DebugContext(ctx, "mongo command failed",
				slog.String("command", e.CommandName),
				slog.String("failure", e.Failure),
			)
		},
	}
}
