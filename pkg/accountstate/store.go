/**
 * @description
 * Package accountstate holds a client's view of the signed-in user's accounts
 * and the current selection, and keeps it consistent with the finance service by
 * refetching the full list after every successful mutation.
 *
 * @dependencies
 * - pkg/financeclient: the HTTP client used for every network call.
 */
package accountstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/transfa/finance-service/pkg/financeclient"
)

// ErrDuplicateName is wrapped by the FieldError returned when a name collides
// with another of the user's accounts.
var ErrDuplicateName = errors.New("an account with this name already exists")

// ErrUnknownAccount is returned by Select for an id that is not in the list.
var ErrUnknownAccount = errors.New("account not found")

// AccountAPI is the part of the finance client the store depends on.
type AccountAPI interface {
	ListAccounts(ctx context.Context) ([]financeclient.Account, error)
	CreateAccount(ctx context.Context, req financeclient.CreateAccountRequest) (*financeclient.Account, error)
	UpdateAccount(ctx context.Context, id string, req financeclient.UpdateAccountRequest) (*financeclient.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// FieldError reports a problem with one input field, found before any network call.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

func (e *FieldError) Unwrap() error { return e.Err }

// Snapshot is an immutable copy of the store's state. Selected is nil when the
// overview is shown.
type Snapshot struct {
	Accounts []financeclient.Account
	Selected *financeclient.Account
}

// Store is safe for concurrent use. Listeners are invoked outside the lock, in
// subscription order, after every state change.
type Store struct {
	api AccountAPI

	mu         sync.Mutex
	accounts   []financeclient.Account
	selectedID string
	// generation orders overlapping refreshes; an older response never replaces a newer one.
	generation uint64
	applied    uint64
	listeners  []listener
	nextID     int
}

type listener struct {
	id int
	fn func(Snapshot)
}

// New creates an empty store. Call Refresh to load the accounts.
func New(api AccountAPI) *Store {
	return &Store{api: api}
}

// Subscribe registers fn for state changes and returns a function that removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Refresh refetches the account list. On failure the state is left unchanged.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	accounts, err := s.api.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	s.mu.Lock()
	if gen <= s.applied {
		s.mu.Unlock()
		return nil
	}
	s.applied = gen
	s.accounts = append([]financeclient.Account(nil), accounts...)
	if s.selectedID != "" && s.indexLocked(s.selectedID) < 0 {
		s.selectedID = ""
	}
	snap, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snap)
	return nil
}

// SelectOverview clears the selection.
func (s *Store) SelectOverview() {
	s.mu.Lock()
	s.selectedID = ""
	snap, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snap)
}

// Select makes the account with id the current selection.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return ErrUnknownAccount
	}
	s.selectedID = id
	snap, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, snap)
	return nil
}

// Create adds an account and refetches the list. A name that collides with an
// existing account is rejected without a network call.
func (s *Store) Create(ctx context.Context, req financeclient.CreateAccountRequest) (*financeclient.Account, error) {
	if err := s.checkName(req.Name, ""); err != nil {
		return nil, err
	}
	created, err := s.api.CreateAccount(ctx, req)
	if err != nil {
		return nil, err
	}
	return created, s.Refresh(ctx)
}

// Update changes an account and refetches the list. Renaming onto another
// account's name is rejected without a network call.
func (s *Store) Update(ctx context.Context, id string, req financeclient.UpdateAccountRequest) (*financeclient.Account, error) {
	if req.Name != nil {
		if err := s.checkName(*req.Name, id); err != nil {
			return nil, err
		}
	}
	updated, err := s.api.UpdateAccount(ctx, id, req)
	if err != nil {
		return nil, err
	}
	return updated, s.Refresh(ctx)
}

// Delete removes an account and refetches the list. A deleted selection falls
// back to the overview.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.api.DeleteAccount(ctx, id); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// checkName compares the normalized name with every account except exceptID.
func (s *Store) checkName(name, exceptID string) error {
	normalized := normalizeName(name)
	if normalized == "" {
		return &FieldError{Field: "name", Message: "Account name is needed"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID != exceptID && normalizeName(a.Name) == normalized {
			return &FieldError{Field: "name", Message: "An account with this name already exists", Err: ErrDuplicateName}
		}
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *Store) indexLocked(id string) int {
	for i, a := range s.accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Accounts: append([]financeclient.Account(nil), s.accounts...)}
	if i := s.indexLocked(s.selectedID); s.selectedID != "" && i >= 0 {
		selected := s.accounts[i]
		snap.Selected = &selected
	}
	return snap
}

func (s *Store) listenersLocked() []func(Snapshot) {
	fns := make([]func(Snapshot), len(s.listeners))
	for i, l := range s.listeners {
		fns[i] = l.fn
	}
	return fns
}

func notify(listeners []func(Snapshot), snap Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}
