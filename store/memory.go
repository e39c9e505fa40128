package store

import (
	"context"
	"sort"
	"sync"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

// MemoryStore is an in-memory implementation, intended for tests and dry runs.
// It stores encoded documents so callers never share state with it.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string][]byte
	peers    map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[string][]byte),
		peers:    make(map[string][]byte),
	}
}

// ReadSettings returns the settings record of id.
func (m *MemoryStore) ReadSettings(_ context.Context, id string) (*vpn.ProfileSettings, error) {
	m.mu.RLock()
	data, ok := m.settings[id]
	m.mu.RUnlock()
	if !ok {
		return nil, common.ErrProfileNotFound
	}
	return decodeSettings(data)
}

// ReadPeerConfig returns the peer config of id.
func (m *MemoryStore) ReadPeerConfig(_ context.Context, id string) (*vpn.PeerConfig, error) {
	m.mu.RLock()
	data, ok := m.peers[id]
	m.mu.RUnlock()
	if !ok {
		return nil, common.ErrProfileNotFound
	}
	return decodePeer(data)
}

// WriteSettings stores the settings record of id.
func (m *MemoryStore) WriteSettings(_ context.Context, id string, settings *vpn.ProfileSettings) error {
	if err := checkID(id); err != nil {
		return err
	}
	data, err := encodeSettings(settings)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.settings[id] = data
	m.mu.Unlock()
	return nil
}

// WritePeerConfig stores the peer config of id.
func (m *MemoryStore) WritePeerConfig(_ context.Context, id string, peer *vpn.PeerConfig) error {
	if err := checkID(id); err != nil {
		return err
	}
	data, err := encodePeer(peer)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.peers[id] = data
	m.mu.Unlock()
	return nil
}

// PutRaw stores an arbitrary settings document, bypassing encoding.
func (m *MemoryStore) PutRaw(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[id] = append([]byte{}, data...)
}

// List returns the stored profile ids.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.settings))
	for id := range m.settings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
