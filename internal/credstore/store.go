// Package credstore persists the access/refresh token pair across runs.
package credstore

import (
	"context"
	"sync"
)

// Credential is the bearer token pair issued by the API.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present.
func (c Credential) Complete() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Store is the durable home of the credential. Only the session manager writes to it.
type Store interface {
	// Load returns the stored credential, or nil if either token is absent.
	// Absence is not an error.
	Load(ctx context.Context) (*Credential, error)

	// Save replaces both tokens.
	Save(ctx context.Context, c Credential) error

	// Clear removes both tokens. Clearing an empty store succeeds.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the credential in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	cred   *Credential
	saves  int
	clears int
}

// NewMemoryStore creates an empty store, optionally seeded.
func NewMemoryStore(seed *Credential) *MemoryStore {
	s := &MemoryStore{}
	if seed != nil {
		c := *seed
		s.cred = &c
	}
	return s
}

func (s *MemoryStore) Load(ctx context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil || !s.cred.Complete() {
		return nil, nil
	}
	c := *s.cred
	return &c, nil
}

func (s *MemoryStore) Save(ctx context.Context, c Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &c
	s.saves++
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	s.clears++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Clears returns how many times Clear was called.
func (s *MemoryStore) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}
