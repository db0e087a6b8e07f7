package usersync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quickcart/usersync/internal/dbconn"
)

// emailsCollection holds one document per claimed email so uniqueness can be checked inside a transaction.
const emailsCollection = "user_emails"

// FirestoreRepository stores user records in Firestore, keyed by the identity id.
type FirestoreRepository struct {
	conns     *dbconn.Cache[*firestore.Client]
	projectID string
	now       func() time.Time
}

// NewFirestoreRepository creates a repository that acquires its client from the connection cache.
func NewFirestoreRepository(conns *dbconn.Cache[*firestore.Client], projectID string) *FirestoreRepository {
	return &FirestoreRepository{
		conns:     conns,
		projectID: projectID,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type emailClaim struct {
	UserID string `firestore:"user_id"`
}

func (r *FirestoreRepository) client(ctx context.Context) (*firestore.Client, error) {
	return r.conns.Acquire(ctx)
}

func emailRef(client *firestore.Client, email string) *firestore.DocumentRef {
	return client.Collection(emailsCollection).Doc(url.PathEscape(email))
}

func (r *FirestoreRepository) Get(ctx context.Context, id string) (UserRecord, error) {
	client, err := r.client(ctx)
	if err != nil {
		return UserRecord{}, err
	}

	doc, err := client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		return UserRecord{}, mapFirestoreError(err)
	}
	return decodeUser(doc)
}

func (r *FirestoreRepository) Insert(ctx context.Context, id string, fields Fields) (UserRecord, error) {
	client, err := r.client(ctx)
	if err != nil {
		return UserRecord{}, err
	}

	userRef := client.Collection(usersCollection).Doc(id)
	claimRef := emailRef(client, fields.Email)
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

	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(claimRef); err == nil {
			return ErrConflict
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if _, err := tx.Get(userRef); err == nil {
			return ErrConflict
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		if err := tx.Create(userRef, rec); err != nil {
			return err
		}
		return tx.Set(claimRef, emailClaim{UserID: id})
	})
	if err != nil {
		return UserRecord{}, mapFirestoreError(err)
	}
	return rec, nil
}

func (r *FirestoreRepository) UpdateFields(ctx context.Context, id string, fields Fields) (UserRecord, error) {
	client, err := r.client(ctx)
	if err != nil {
		return UserRecord{}, err
	}

	userRef := client.Collection(usersCollection).Doc(id)
	newClaim := emailRef(client, fields.Email)

	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(userRef)
		if err != nil {
			return err
		}
		current, err := decodeUser(doc)
		if err != nil {
			return err
		}

		emailChanged := current.Email != fields.Email
		if emailChanged {
			claim, err := tx.Get(newClaim)
			if err == nil {
				var owner emailClaim
				if err := claim.DataTo(&owner); err != nil {
					return fmt.Errorf("decode email claim: %w", err)
				}
				if owner.UserID != id {
					return ErrConflict
				}
			} else if status.Code(err) != codes.NotFound {
				return err
			}
		}

		if err := tx.Update(userRef, []firestore.Update{
			{Path: "name", Value: fields.DisplayName},
			{Path: "email", Value: fields.Email},
			{Path: "imageUrl", Value: fields.AvatarURL},
			{Path: "updatedAt", Value: r.now()},
		}); err != nil {
			return err
		}
		if !emailChanged {
			return nil
		}
		if current.Email != "" {
			if err := tx.Delete(emailRef(client, current.Email)); err != nil {
				return err
			}
		}
		return tx.Set(newClaim, emailClaim{UserID: id})
	})
	if err != nil {
		return UserRecord{}, mapFirestoreError(err)
	}

	// Read back outside the transaction so server-side values are reflected.
	return r.Get(ctx, id)
}

func (r *FirestoreRepository) Delete(ctx context.Context, id string) error {
	client, err := r.client(ctx)
	if err != nil {
		return err
	}

	userRef := client.Collection(usersCollection).Doc(id)
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(userRef)
		if err != nil {
			return err
		}
		current, err := decodeUser(doc)
		if err != nil {
			return err
		}
		if err := tx.Delete(userRef); err != nil {
			return err
		}
		if current.Email == "" {
			return nil
		}
		return tx.Delete(emailRef(client, current.Email))
	})
	return mapFirestoreError(err)
}

func (r *FirestoreRepository) Count(ctx context.Context) (int64, error) {
	client, err := r.client(ctx)
	if err != nil {
		return 0, err
	}

	iter := client.Collection(usersCollection).Select().Documents(ctx)
	defer iter.Stop()

	var n int64
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (r *FirestoreRepository) Backend() string    { return "firestore" }
func (r *FirestoreRepository) Database() string   { return r.projectID }
func (r *FirestoreRepository) CacheState() string { return string(r.conns.State()) }

func (r *FirestoreRepository) Ping(ctx context.Context) error {
	return r.conns.Ping(ctx)
}

func (r *FirestoreRepository) Collections(ctx context.Context) ([]string, error) {
	client, err := r.client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collections(ctx)
	var names []string
	for {
		ref, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, ref.ID)
	}
	return names, nil
}

func decodeUser(doc *firestore.DocumentSnapshot) (UserRecord, error) {
	var rec UserRecord
	if err := doc.DataTo(&rec); err != nil {
		return UserRecord{}, fmt.Errorf("unmarshal user: %w", err)
	}
	rec.ID = doc.Ref.ID
	return rec, nil
}

func mapFirestoreError(err error) error {
	if err == nil || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
