// Package credential holds the controller's single active pairing
// credential in memory.
package credential

import (
	"errors"
	"fmt"
	"sync"

	"github.com/CHERIoT-Platform/hugh-go/pkg/pairing"
)

// Store errors.
var (
	ErrNoCredential    = errors.New("no credential")
	ErrInvalidSnapshot = errors.New("invalid credential snapshot")
)

// State is the tagged state of a Store.
type State uint8

const (
	// StateAbsent means no credential is held.
	StateAbsent State = iota

	// StatePresent means a complete credential is held.
	StatePresent
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "ABSENT"
	case StatePresent:
		return "PRESENT"
	default:
		return "UNKNOWN"
	}
}

// Store holds at most one credential. All methods are safe for concurrent use.
//
// The credential is either fully present or absent; an all-zero key is a
// valid scanned key and is never used to mean "revoked".
type Store struct {
	mu    sync.Mutex
	state State
	cred  *pairing.Credential
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the held credential with c. The store takes ownership of c;
// the previously held key is wiped.
func (s *Store) Set(c *pairing.Credential) {
	if c == nil {
		s.Revoke()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred != nil && s.cred != c {
		s.cred.Wipe()
	}
	s.cred = c
	s.state = StatePresent
}

// Get returns a copy of the held credential. The caller owns the copy and
// should Wipe it when done.
func (s *Store) Get() (*pairing.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePresent {
		return nil, false
	}
	return s.cred.Clone(), true
}

// Borrow calls fn with the held credential while holding the store lock.
// fn must not retain the pointer or block on I/O. Returns ErrNoCredential
// without calling fn when the store is empty.
func (s *Store) Borrow(fn func(c *pairing.Credential) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePresent {
		return ErrNoCredential
	}
	return fn(s.cred)
}

// Revoke zeroes the held key, clears the topic and empties the store. It
// returns the topic that was revoked, read under the same lock. Revoking an
// empty store is a no-op and returns false.
func (s *Store) Revoke() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePresent {
		return "", false
	}
	topic := s.cred.Topic()
	s.cred.Wipe()
	s.cred = nil
	s.state = StateAbsent
	return topic, true
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Topic returns the topic of the held credential, if any.
func (s *Store) Topic() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePresent {
		return "", false
	}
	return s.cred.Topic(), true
}

// Snapshot is the suspend/resume form of the store: two opaque fields handed
// to the host's state-preservation mechanism and returned verbatim.
type Snapshot struct {
	Key   []byte  `cbor:"1,keyasint,omitempty"`
	Topic *string `cbor:"2,keyasint,omitempty"`
}

// Paired reports whether the snapshot carries a credential.
func (sn Snapshot) Paired() bool {
	return sn.Topic != nil
}

// Wipe zeroes the snapshot's key bytes.
func (sn *Snapshot) Wipe() {
	clear(sn.Key)
	sn.Key = nil
}

// Snapshot captures the held credential. An empty store yields a snapshot
// with no topic.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePresent {
		return Snapshot{}
	}

	key := make([]byte, len(s.cred.Key()))
	copy(key, s.cred.Key())
	topic := s.cred.Topic()
	return Snapshot{Key: key, Topic: &topic}
}

// Restore replaces the store contents with a snapshot. A snapshot without a
// topic leaves the store empty. An unusable snapshot returns
// ErrInvalidSnapshot and leaves the store unchanged.
func (s *Store) Restore(sn Snapshot) error {
	if !sn.Paired() {
		s.Revoke()
		return nil
	}

	c, err := pairing.FromTopic(*sn.Topic, sn.Key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	s.Set(c)
	return nil
}
