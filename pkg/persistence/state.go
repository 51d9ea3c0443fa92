package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/CHERIoT-Platform/hugh-go/pkg/credential"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrUnsupportedVersion is returned by Load for files written by a newer
// release.
var ErrUnsupportedVersion = errors.New("unsupported state file version")

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("persistence: cbor encoder mode: %v", err))
	}
}

// ControllerState is the runtime state of a controller.
type ControllerState struct {
	// Version is the state file format version.
	Version int `cbor:"1,keyasint"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `cbor:"2,keyasint"`

	// Broker is the broker URL in use when the state was saved.
	Broker string `cbor:"3,keyasint,omitempty"`

	// Credential is the paired credential. A snapshot without a topic
	// means unpaired.
	Credential credential.Snapshot `cbor:"4,keyasint"`
}

// Wipe zeroes the key material held by the state.
func (s *ControllerState) Wipe() {
	s.Credential.Wipe()
}

// ControllerStateStore manages persistence of controller state to a file.
type ControllerStateStore struct {
	mu   sync.Mutex
	path string
}

// NewControllerStateStore creates a store for path.
func NewControllerStateStore(path string) *ControllerStateStore {
	return &ControllerStateStore{path: path}
}

// Path returns the state file path.
func (s *ControllerStateStore) Path() string {
	return s.path
}

// Save persists state to disk, replacing the previous file atomically.
func (s *ControllerStateStore) Save(state *ControllerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := encMode.Marshal(state)
	if err != nil {
		return err
	}
	defer clear(data)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *ControllerStateStore) Load() (*ControllerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer clear(data)

	state := &ControllerState{}
	if err := cbor.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		state.Wipe()
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)
	}

	return state, nil
}

// Clear removes the state file.
func (s *ControllerStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
