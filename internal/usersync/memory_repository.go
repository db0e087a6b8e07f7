package usersync

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryRepository implements Repository using in-memory storage with the same
// id and email uniqueness rules as the document stores.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]UserRecord
	emails  map[string]string
	now     func() time.Time
}

// NewMemoryRepository creates a new in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]UserRecord),
		emails:  make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Get(_ context.Context, id string) (UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return clone(rec), nil
}

func (r *MemoryRepository) Insert(_ context.Context, id string, fields Fields) (UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; exists {
		return UserRecord{}, ErrConflict
	}
	if _, taken := r.emails[fields.Email]; taken {
		return UserRecord{}, ErrConflict
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
	r.records[id] = rec
	r.emails[fields.Email] = id
	return clone(rec), nil
}

func (r *MemoryRepository) UpdateFields(_ context.Context, id string, fields Fields) (UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	if owner, taken := r.emails[fields.Email]; taken && owner != id {
		return UserRecord{}, ErrConflict
	}

	delete(r.emails, rec.Email)
	rec.DisplayName = fields.DisplayName
	rec.Email = fields.Email
	rec.AvatarURL = fields.AvatarURL
	rec.UpdatedAt = r.now()
	r.records[id] = rec
	r.emails[rec.Email] = id
	return clone(rec), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	delete(r.emails, rec.Email)
	return nil
}

func (r *MemoryRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.records)), nil
}

func (r *MemoryRepository) Backend() string    { return "memory" }
func (r *MemoryRepository) Database() string   { return "" }
func (r *MemoryRepository) CacheState() string { return "ready" }

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) Collections(context.Context) ([]string, error) {
	return []string{usersCollection}, nil
}

func clone(rec UserRecord) UserRecord {
	rec.Cart = maps.Clone(rec.Cart)
	return rec
}
