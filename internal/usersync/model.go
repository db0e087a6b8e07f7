package usersync

import (
	"context"
	"strings"
	"time"
)

// Kind identifies the identity lifecycle change carried by an Event.
type Kind string

const (
	KindCreated Kind = "user.created"
	KindUpdated Kind = "user.updated"
	KindDeleted Kind = "user.deleted"
)

// ParseKind maps a provider or event-bus type string to a Kind.
// Namespaced names such as "clerk/user.created" or "identity/user.created" are accepted.
func ParseKind(raw string) (Kind, error) {
	name := strings.TrimSpace(raw)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	switch Kind(name) {
	case KindCreated, KindUpdated, KindDeleted:
		return Kind(name), nil
	default:
		return "", ErrUnknownEventType
	}
}

// EmailAddress mirrors the identity provider's email address object.
type EmailAddress struct {
	ID           string `json:"id,omitempty"`
	EmailAddress string `json:"email_address"`
}

// Payload is the user object delivered with identity events.
// Name parts are pointers so an absent field can be told apart from an empty one.
type Payload struct {
	ID             string         `json:"id"`
	FirstName      *string        `json:"first_name,omitempty"`
	LastName       *string        `json:"last_name,omitempty"`
	EmailAddresses []EmailAddress `json:"email_addresses,omitempty"`
	ImageURL       string         `json:"image_url,omitempty"`
}

// Event is one normalized identity change handed to the Reconciler.
type Event struct {
	Kind    Kind    `json:"type"`
	Payload Payload `json:"data"`
}

// Envelope is the provider's webhook body: {"type": "...", "data": {...}}.
type Envelope struct {
	Type   string  `json:"type"`
	Object string  `json:"object,omitempty"`
	Data   Payload `json:"data"`
}

// Event normalizes the envelope. Unknown types return ErrUnknownEventType.
func (e Envelope) Event() (Event, error) {
	kind, err := ParseKind(e.Type)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, Payload: e.Data}, nil
}

// UserRecord is the persisted user document.
type UserRecord struct {
	ID          string         `json:"id" bson:"_id" firestore:"-"`
	DisplayName string         `json:"name" bson:"name" firestore:"name"`
	Email       string         `json:"email" bson:"email" firestore:"email"`
	AvatarURL   string         `json:"imageUrl" bson:"imageUrl" firestore:"imageUrl"`
	Cart        map[string]any `json:"cartItems" bson:"cartItems" firestore:"cartItems"`
	CreatedAt   time.Time      `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

// Fields are the provider-owned attributes the reconciler writes. Cart is never part of it.
type Fields struct {
	DisplayName string
	Email       string
	AvatarURL   string
}

// Outcome describes what a reconciliation did to the store.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeUpserted Outcome = "upserted"
	OutcomeDeleted  Outcome = "deleted"
	OutcomeNotFound Outcome = "not_found"
)

// Result reports a successful reconciliation. Record is nil after a delete.
type Result struct {
	Kind    Kind        `json:"event"`
	UserID  string      `json:"userId"`
	Outcome Outcome     `json:"outcome"`
	Record  *UserRecord `json:"record,omitempty"`
}

// Repository is the user record store.
// Insert reports ErrConflict when the id or email is already taken;
// UpdateFields and Delete report ErrNotFound for an absent id.
type Repository interface {
	Get(ctx context.Context, id string) (UserRecord, error)
	Insert(ctx context.Context, id string, fields Fields) (UserRecord, error)
	UpdateFields(ctx context.Context, id string, fields Fields) (UserRecord, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// Diagnostics exposes store details for operator endpoints.
type Diagnostics interface {
	Backend() string
	Database() string
	CacheState() string
	Ping(ctx context.Context) error
	Collections(ctx context.Context) ([]string, error)
}
