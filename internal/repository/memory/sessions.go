package memoryrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-checkout/internal/domain"
	"github.com/kirinyoku/tix-checkout/internal/repository"
)

// SessionStore keeps sessions in process memory, keyed by user id.
// Stored and returned sessions are deep copies.
type SessionStore struct {
	mu     sync.RWMutex
	byUser map[int64]*domain.Session
	byID   map[uuid.UUID]int64
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		byUser: make(map[int64]*domain.Session),
		byID:   make(map[uuid.UUID]int64),
	}
}

// Save stores s as the user's session. It fails with repository.ErrConflict
// if the user currently holds a different session; use ReplaceForUser to
// supersede it.
func (st *SessionStore) Save(_ context.Context, s *domain.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if cur, ok := st.byUser[s.UserID]; ok && cur.ID != s.ID {
		return repository.ErrConflict
	}

	st.put(s)

	return nil
}

// ReplaceForUser removes whatever session the user has and stores s.
func (st *SessionStore) ReplaceForUser(_ context.Context, s *domain.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if cur, ok := st.byUser[s.UserID]; ok {
		delete(st.byID, cur.ID)
	}

	st.put(s)

	return nil
}

func (st *SessionStore) FindByUser(_ context.Context, userID int64) (*domain.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.byUser[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return s.Clone(), nil
}

func (st *SessionStore) DeleteByID(_ context.Context, id uuid.UUID) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	userID, ok := st.byID[id]
	if !ok {
		return repository.ErrNotFound
	}

	delete(st.byID, id)
	delete(st.byUser, userID)

	return nil
}

func (st *SessionStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var n int64
	for userID, s := range st.byUser {
		if s.LastActivityAt.Before(cutoff) {
			delete(st.byID, s.ID)
			delete(st.byUser, userID)
			n++
		}
	}

	return n, nil
}

func (st *SessionStore) put(s *domain.Session) {
	st.byUser[s.UserID] = s.Clone()
	st.byID[s.ID] = s.UserID
}
