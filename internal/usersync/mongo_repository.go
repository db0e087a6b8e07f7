package usersync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/quickcart/usersync/internal/dbconn"
)

const usersCollection = "users"

// MongoRepository stores user records in the "users" collection keyed by the identity id.
// Email uniqueness is enforced by a unique index (see EnsureIndexes).
type MongoRepository struct {
	conns    *dbconn.Cache[*mongo.Client]
	database string
	now      func() time.Time
}

// NewMongoRepository creates a repository that acquires its client from the connection cache.
func NewMongoRepository(conns *dbconn.Cache[*mongo.Client], database string) *MongoRepository {
	return &MongoRepository{
		conns:    conns,
		database: database,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MongoRepository) users(ctx context.Context) (*mongo.Collection, error) {
	client, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(r.database).Collection(usersCollection), nil
}

// EnsureIndexes creates the unique email index if it does not exist yet.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	client, err := r.conns.Acquire(ctx)
	if err != nil {
		return err
	}
	return EnsureMongoIndexes(r.database)(ctx, client)
}

// EnsureMongoIndexes returns a setup step that creates the unique email index on a
// fresh client. Creating an index that already exists is a no-op.
func EnsureMongoIndexes(database string) func(ctx context.Context, client *mongo.Client) error {
	return func(ctx context.Context, client *mongo.Client) error {
		_, err := client.Database(database).Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		})
		if err != nil {
			return fmt.Errorf("create email index: %w", err)
		}
		return nil
	}
}

func (r *MongoRepository) Get(ctx context.Context, id string) (UserRecord, error) {
	coll, err := r.users(ctx)
	if err != nil {
		return UserRecord{}, err
	}

	var rec UserRecord
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		return UserRecord{}, mapMongoError(err)
	}
	return rec, nil
}

func (r *MongoRepository) Insert(ctx context.Context, id string, fields Fields) (UserRecord, error) {
	coll, err := r.users(ctx)
	if err != nil {
		return UserRecord{}, err
	}

	now := r.now()
	rec := UserRecord{
		ID:          id,
		DisplayName: fields.DisplayName,
		Email:       fields.Email,
		AvatarURL:   fields.AvatarURL,
		Cart:        map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := coll.InsertOne(ctx, rec); err != nil {
		return UserRecord{}, mapMongoError(err)
	}
	return rec, nil
}

func (r *MongoRepository) UpdateFields(ctx context.Context, id string, fields Fields) (UserRecord, error) {
	coll, err := r.users(ctx)
	if err != nil {
		return UserRecord{}, err
	}

	update := bson.M{"$set": bson.M{
		"name":      fields.DisplayName,
		"email":     fields.Email,
		"imageUrl":  fields.AvatarURL,
		"updatedAt": r.now(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec UserRecord
	if err := coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&rec); err != nil {
		return UserRecord{}, mapMongoError(err)
	}
	return rec, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	coll, err := r.users(ctx)
	if err != nil {
		return err
	}

	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapMongoError(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) Count(ctx context.Context) (int64, error) {
	coll, err := r.users(ctx)
	if err != nil {
		return 0, err
	}
	return coll.CountDocuments(ctx, bson.D{})
}

func (r *MongoRepository) Backend() string    { return "mongo" }
func (r *MongoRepository) Database() string   { return r.database }
func (r *MongoRepository) CacheState() string { return string(r.conns.State()) }

// Ping opens and closes a dedicated client so the shared one is never disturbed.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.conns.Ping(ctx)
}

func (r *MongoRepository) Collections(ctx context.Context) ([]string, error) {
	client, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(r.database).ListCollectionNames(ctx, bson.D{})
}

func mapMongoError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
