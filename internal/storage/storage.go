// Package storage opens the user record store selected by DATASTORE.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/quickcart/usersync/internal/config"
	"github.com/quickcart/usersync/internal/dbconn"
	"github.com/quickcart/usersync/internal/usersync"
)

// Store is a repository together with its diagnostics and shutdown hook.
type Store interface {
	usersync.Repository
	usersync.Diagnostics
}

// Opened is the result of Open.
type Opened struct {
	Store Store
	// Redacted is the connection target with credentials masked, for diagnostics output.
	Redacted string
	// Close releases the cached connection. Safe to call more than once.
	Close func(ctx context.Context) error
}

// Open builds the configured store. Nothing is dialed until the first store call.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Opened, error) {
	switch cfg.DataStore {
	case "mongo":
		dial := usersync.DialMongo(usersync.MongoConfig{
			URI:                    cfg.Mongo.URI,
			MaxPoolSize:            uint64(cfg.Mongo.MaxPoolSize),
			ServerSelectionTimeout: cfg.Mongo.ServerSelectionTimeout,
			SocketTimeout:          cfg.Mongo.SocketTimeout,
			LogCommands:            logger.Enabled(ctx, slog.LevelDebug),
		}, logger)
		// Every fresh client ensures the unique email index before it serves a write.
		dial = dbconn.WithSetup(dial, usersync.CloseMongo, usersync.EnsureMongoIndexes(cfg.Mongo.Database))
		conns := dbconn.New[*mongo.Client]("mongo", dial, usersync.CloseMongo, dbconn.WithLogger(logger))

		repo := usersync.NewMongoRepository(conns, cfg.Mongo.Database)
		return Opened{Store: repo, Redacted: RedactURI(cfg.Mongo.URI), Close: conns.Close}, nil

	case "firestore":
		conns := dbconn.New[*firestore.Client]("firestore", usersync.DialFirestore(cfg.GCPProjectID),
			usersync.CloseFirestore, dbconn.WithLogger(logger))

		target := "firestore://" + cfg.GCPProjectID
		if cfg.Firestore.EmulatorHost != "" {
			target += " (emulator " + cfg.Firestore.EmulatorHost + ")"
		}
		return Opened{Store: usersync.NewFirestoreRepository(conns, cfg.GCPProjectID), Redacted: target, Close: conns.Close}, nil

	case "memory":
		return Opened{
			Store:    usersync.NewMemoryRepository(),
			Redacted: "memory://",
			Close:    func(context.Context) error { return nil },
		}, nil

	default:
		return Opened{}, fmt.Errorf("unsupported datastore %q", cfg.DataStore)
	}
}

// Prepare connects eagerly and creates the indexes the store relies on for uniqueness.
// Mongo clients also ensure them on every dial, so a failure here is not fatal.
// Stores without index management are left untouched.
func Prepare(ctx context.Context, store Store) error {
	type indexer interface {
		EnsureIndexes(ctx context.Context) error
	}
	if ix, ok := store.(indexer); ok {
		return ix.EnsureIndexes(ctx)
	}
	return nil
}

var _ Store = (*usersync.MongoRepository)(nil)
var _ Store = (*usersync.FirestoreRepository)(nil)
var _ Store = (*usersync.MemoryRepository)(nil)
