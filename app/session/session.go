// Package session keeps the currently authenticated user and broadcasts changes
package session

import (
	"context"
	"sync"

	log "github.com/go-pkgz/lgr"

	"github.com/dorominseok/festival-pj/app/models"
	"github.com/dorominseok/festival-pj/app/notify"
)

// Authenticator checks credentials against the backend
type Authenticator interface {
	Login(ctx context.Context, email, password string) (models.User, error)
}

// Store is the single source of truth for "who is logged in".
// Zero or one user, empty on start, nothing is persisted.
type Store struct {
	auth Authenticator

	writeMu sync.Mutex // serializes change+notify, keeps notifications in mutation order
	mu      sync.RWMutex
	user    *models.User
	subs    notify.Broadcaster[*models.User]
}

// NewStore makes an empty session store
func NewStore(auth Authenticator) *Store {
	return &Store{auth: auth}
}

// Current returns a copy of the logged-in user or nil
func (s *Store) Current() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := s.user.Clone()
	return &u
}

// Interests returns the current user's interest tags, nil without a session
func (s *Store) Interests() []string {
	if u := s.Current(); u != nil {
		return u.Interests
	}
	return nil
}

// Set replaces the session (nil clears it) and notifies subscribers
func (s *Store) Set(user *models.User) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var stored *models.User
	if user != nil {
		u := user.Clone()
		stored = &u
	}
	s.mu.Lock()
	s.user = stored
	s.mu.Unlock()

	s.subs.Emit(s.Current())
}

// Login authenticates via the backend and sets the session.
// Errors are returned as is and the session is left untouched.
func (s *Store) Login(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return models.User{}, err
	}
	log.Printf("[INFO] logged in as %d (%s)", user.ID, user.Email)
	s.Set(&user)
	return user.Clone(), nil
}

// Logout clears the session and notifies subscribers
func (s *Store) Logout() {
	log.Printf("[INFO] logout")
	s.Set(nil)
}

// Subscribe registers fn for session changes, fn receives nil on logout.
// The current value is NOT delivered on registration, call Current once yourself.
// fn may call Current but must not call Set, Login or Logout.
func (s *Store) Subscribe(fn func(*models.User)) (unsubscribe func()) {
	return s.subs.Subscribe(fn)
}
