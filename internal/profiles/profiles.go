// Package profiles stores the answers collected by the registration flow.
package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// Profile is what the bot knows about a user.
type Profile struct {
	UserID    int64     `db:"user_id"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Gender    string    `db:"gender"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ErrNotFound is returned for users without a profile.
var ErrNotFound = errors.New("profiles: not found")

// Store persists profiles.
type Store interface {
	Save(ctx context.Context, p Profile) error
	Get(ctx context.Context, userID int64) (Profile, error)
}

// SQLStore keeps profiles in the postgres table created by the migrations.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps db.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

const upsertProfile = `
INSERT INTO profiles (user_id, first_name, last_name, gender)
VALUES (:user_id, :first_name, :last_name, :gender)
ON CONFLICT (user_id) DO UPDATE
SET first_name = EXCLUDED.first_name,
    last_name  = EXCLUDED.last_name,
    gender     = EXCLUDED.gender,
    updated_at = now()`

// Save inserts or replaces the profile of p.UserID.
func (s *SQLStore) Save(ctx context.Context, p Profile) error {
	if _, err := s.db.NamedExecContext(ctx, upsertProfile, p); err != nil {
		return fmt.Errorf("profiles: save %d: %w", p.UserID, err)
	}
	return nil
}

// Get loads the profile of userID.
func (s *SQLStore) Get(ctx context.Context, userID int64) (Profile, error) {
	var p Profile
	err := s.db.GetContext(ctx, &p,
		`SELECT user_id, first_name, last_name, gender, created_at, updated_at FROM profiles WHERE user_id = $1`,
		userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("profiles: get %d: %w", userID, err)
	}
	return p, nil
}

// MemoryStore is used when the database is disabled.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[int64]Profile
	now  func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int64]Profile), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if prev, ok := s.byID[p.UserID]; ok {
		p.CreatedAt = prev.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.byID[p.UserID] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}
