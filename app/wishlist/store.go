// Package wishlist keeps the wishlisted festivals of the logged-in user.
//
// Local changes are applied optimistically and reconciled with the backend by a full
// resync: on login, and after every toggle settles (success or failure). A failed resync
// is logged and leaves the local state as is; the next resync is the only correction
// path. This eventual consistency is intended. Resyncing after a successful toggle doubles
// the traffic per toggle, kept for correctness.
package wishlist

import (
	"context"
	"sync"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/dorominseok/festival-pj/app/models"
	"github.com/dorominseok/festival-pj/app/notify"
)

// Gateway is the part of the backend client the store needs
type Gateway interface {
	GetWishlist(ctx context.Context, userID int64) ([]models.WishlistEntry, error)
	GetFestivals(ctx context.Context) ([]models.Festival, error)
	ToggleWishlist(ctx context.Context, userID, festivalID int64) error
}

// Session is the source of login/logout transitions
type Session interface {
	Current() *models.User
	Subscribe(fn func(*models.User)) (unsubscribe func())
}

// State of the store
type State int

// enum of states
const (
	StateEmpty   State = iota // no user
	StateLoading              // user set, first resync in flight
	StateReady                // resync applied or a toggle happened
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

// Store holds the wishlist of the current session user
type Store struct {
	gw     Gateway
	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
	wg     sync.WaitGroup

	writeMu sync.Mutex // held across mutate+emit, keeps notifications in mutation order
	mu      sync.RWMutex
	list    []models.Festival
	state   State
	synced  bool   // a resync was applied for the current user
	userID  int64  // owner of list, 0 without session
	gen     uint64 // bumped when the session user changes
	seq     uint64 // resync fetch counter
	applied uint64 // seq of the last applied resync
	subs    notify.Broadcaster[[]models.Festival]
}

// NewStore makes a store bound to the session. An already logged-in user is
// picked up right away.
func NewStore(gw Gateway, sess Session) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{gw: gw, ctx: ctx, cancel: cancel}
	s.unsub = sess.Subscribe(s.onSession)
	if u := sess.Current(); u != nil {
		s.onSession(u)
	}
	return s
}

// Wishlist returns a copy of the list in local insertion order
func (s *Store) Wishlist() []models.Festival {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// IsWishlisted reports whether the festival is in the local list
func (s *Store) IsWishlisted(festivalID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index(festivalID) >= 0
}

// State returns the current state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Synced reports whether the list was loaded from the backend since the session user changed.
// Toggles alone don't make the store synced.
func (s *Store) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Subscribe registers fn for list changes. The current list is NOT delivered on
// registration, call Wishlist once yourself. fn may call read methods but must not Toggle.
func (s *Store) Subscribe(fn func([]models.Festival)) (unsubscribe func()) {
	return s.subs.Subscribe(fn)
}

// Toggle flips festival membership locally, notifies and returns the new list right away.
// With a session the change is then persisted in the background and followed by a resync,
// without one it stays local until the next session transition.
func (s *Store) Toggle(f models.Festival) []models.Festival {
	s.writeMu.Lock()
	s.mu.Lock()
	if i := s.index(f.ID); i >= 0 {
		s.list = append(s.list[:i:i], s.list[i+1:]...)
	} else {
		s.list = append(s.list[:len(s.list):len(s.list)], f)
	}
	userID, gen := s.userID, s.gen
	if userID != 0 {
		s.state = StateReady
	}
	snap, res := s.snapshot(), s.snapshot()
	s.mu.Unlock()
	s.subs.Emit(snap)
	s.writeMu.Unlock()

	if userID == 0 {
		log.Printf("[DEBUG] wishlist toggle %d without session, local only", f.ID)
		return res
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.gw.ToggleWishlist(s.ctx, userID, f.ID); err != nil {
			log.Printf("[WARN] failed to toggle festival %d for user %d, %v", f.ID, userID, err)
		}
		s.resync(userID, gen)
	}()
	return res
}

// Wait blocks until background toggles and resyncs started so far are done
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close detaches from the session and stops background work
func (s *Store) Close() {
	s.unsub()
	s.cancel()
	s.wg.Wait()
}

func (s *Store) onSession(u *models.User) {
	s.writeMu.Lock()
	s.mu.Lock()

	// same user set again, e.g. after a profile update. Not a transition, in-flight
	// toggles keep their resyncs.
	if u != nil && s.userID != 0 && u.ID == s.userID {
		gen := s.gen
		s.mu.Unlock()
		s.writeMu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.resync(u.ID, gen)
		}()
		return
	}

	s.gen++
	gen := s.gen

	if u == nil {
		s.list, s.state, s.userID, s.synced = nil, StateEmpty, 0, false
		snap := s.snapshot()
		s.mu.Unlock()
		s.subs.Emit(snap)
		s.writeMu.Unlock()
		log.Printf("[DEBUG] wishlist cleared on logout")
		return
	}

	// a different user never sees the previous one's list, even while loading
	changed := s.userID != u.ID && len(s.list) > 0
	if changed {
		s.list = nil
	}
	s.state, s.userID, s.synced = StateLoading, u.ID, false
	snap := s.snapshot()
	s.mu.Unlock()
	if changed {
		s.subs.Emit(snap)
	}
	s.writeMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.resync(u.ID, gen)
	}()
}

// resync re-derives the list from the backend. The result is dropped when the session
// changed since gen was captured, or when a resync that started fetching later was
// already applied.
func (s *Store) resync(userID int64, gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		log.Printf("[DEBUG] skip stale wishlist resync for user %d", userID)
		return
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	var (
		entries   []models.WishlistEntry
		festivals []models.Festival
		errs      *multierror.Error
		errMu     sync.Mutex
	)
	addErr := func(err error) {
		errMu.Lock()
		errs = multierror.Append(errs, err)
		errMu.Unlock()
	}

	swg := syncs.NewSizedGroup(2)
	swg.Go(func(context.Context) {
		var err error
		if entries, err = s.gw.GetWishlist(s.ctx, userID); err != nil {
			addErr(errors.Wrapf(err, "can't get wishlist of user %d", userID))
		}
	})
	swg.Go(func(context.Context) {
		var err error
		if festivals, err = s.gw.GetFestivals(s.ctx); err != nil {
			addErr(errors.Wrap(err, "can't get festivals"))
		}
	})
	swg.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		log.Printf("[WARN] wishlist resync for user %d failed, local state kept, %v", userID, err)
		return
	}

	list := Join(entries, festivals)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		log.Printf("[DEBUG] drop wishlist resync for user %d, session changed", userID)
		return
	}
	if seq < s.applied {
		s.mu.Unlock()
		log.Printf("[DEBUG] drop wishlist resync %d for user %d, newer one applied", seq, userID)
		return
	}
	s.list, s.state, s.applied, s.synced = list, StateReady, seq, true
	snap := s.snapshot()
	s.mu.Unlock()
	s.subs.Emit(snap)
	log.Printf("[DEBUG] wishlist resynced for user %d, %d festivals", userID, len(list))
}

// snapshot copies the list, caller holds mu
func (s *Store) snapshot() []models.Festival {
	res := make([]models.Festival, len(s.list))
	copy(res, s.list)
	return res
}

// index of festival in the list or -1, caller holds mu
func (s *Store) index(festivalID int64) int {
	for i, f := range s.list {
		if f.ID == festivalID {
			return i
		}
	}
	return -1
}

// Join materializes entries as festivals, keeping entry order. Entries pointing to
// unknown festivals are dropped, repeated festival ids are kept once.
func Join(entries []models.WishlistEntry, festivals []models.Festival) []models.Festival {
	byID := make(map[int64]models.Festival, len(festivals))
	for _, f := range festivals {
		byID[f.ID] = f
	}
	res := make([]models.Festival, 0, len(entries))
	seen := make(map[int64]bool, len(entries))
	for _, e := range entries {
		f, ok := byID[e.FestivalID]
		if !ok || seen[e.FestivalID] {
			continue
		}
		seen[e.FestivalID] = true
		res = append(res, f)
	}
	return res
}
