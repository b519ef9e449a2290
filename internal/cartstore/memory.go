package cartstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/noah-isme/storefront/internal/cart"
)

// Memory keeps cart snapshots in process. Used when Redis is not configured and in tests.
type Memory struct {
	mu    sync.Mutex
	carts map[string][]byte
	// Err, when set, is returned from Save to simulate an unavailable store.
	Err error
}

// NewMemory returns an empty in-process persister.
func NewMemory() *Memory {
	return &Memory{carts: make(map[string][]byte)}
}

// Save stores a JSON copy of state so later mutations never leak into the snapshot. A state
// whose version is not newer than the stored one is refused with cart.ErrStaleState.
func (m *Memory) Save(_ context.Context, sessionID string, state cart.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if raw, ok := m.carts[sessionID]; ok {
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(raw, &stored); err == nil && stored.Version >= state.Version {
			return cart.ErrStaleState
		}
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if m.carts == nil {
		m.carts = make(map[string][]byte)
	}
	m.carts[sessionID] = payload
	return nil
}

// Load implements cart.Persister.
func (m *Memory) Load(_ context.Context, sessionID string) (cart.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.carts[sessionID]
	if !ok {
		return cart.State{}, false, nil
	}
	var state cart.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return cart.State{}, false, err
	}
	return state, true, nil
}
