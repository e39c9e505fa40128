package vpn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/yllada/lynxsync/common"
)

type fakeDirectory struct {
	mu             sync.Mutex
	recs           map[int][]CandidateServer
	recErr         error
	countries      []Country
	countriesErr   error
	loads          map[string]int
	loadErr        error
	loadCalls      []string
	countriesCalls int
	recCalls       []int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		recs:  make(map[int][]CandidateServer),
		loads: make(map[string]int),
	}
}

func (d *fakeDirectory) Recommendations(_ context.Context, countryID, _ int) ([]CandidateServer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recCalls = append(d.recCalls, countryID)
	if d.recErr != nil {
		return nil, d.recErr
	}
	return d.recs[countryID], nil
}

func (d *fakeDirectory) Countries(context.Context) ([]Country, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.countriesCalls++
	return d.countries, d.countriesErr
}

func (d *fakeDirectory) ServerLoad(_ context.Context, hostname string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadCalls = append(d.loadCalls, hostname)
	if d.loadErr != nil {
		return 0, d.loadErr
	}
	load, ok := d.loads[hostname]
	if !ok {
		return 0, fmt.Errorf("%w: no stats for %s", common.ErrDirectoryUnavailable, hostname)
	}
	return load, nil
}

type fakeStore struct {
	mu             sync.Mutex
	settings       map[string]*ProfileSettings
	peers          map[string]*PeerConfig
	corrupt        map[string]bool
	readErr        error
	peerReadErr    error
	writeErr       error
	peerWriteErr   error
	settingsWrites int
	peerWrites     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settings: make(map[string]*ProfileSettings),
		peers:    make(map[string]*PeerConfig),
		corrupt:  make(map[string]bool),
	}
}

func (s *fakeStore) ReadSettings(_ context.Context, id string) (*ProfileSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.corrupt[id] {
		return nil, fmt.Errorf("%w: unexpected end of JSON input", common.ErrCorruptProfile)
	}
	settings, ok := s.settings[id]
	if !ok {
		return nil, common.ErrProfileNotFound
	}
	return settings.Clone(), nil
}

func (s *fakeStore) ReadPeerConfig(_ context.Context, id string) (*PeerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerReadErr != nil {
		return nil, s.peerReadErr
	}
	peer, ok := s.peers[id]
	if !ok {
		return nil, common.ErrProfileNotFound
	}
	cp := *peer
	return &cp, nil
}

func (s *fakeStore) WriteSettings(_ context.Context, id string, settings *ProfileSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.settingsWrites++
	s.settings[id] = settings.Clone()
	delete(s.corrupt, id)
	return nil
}

func (s *fakeStore) WritePeerConfig(_ context.Context, id string, peer *PeerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerWriteErr != nil {
		return s.peerWriteErr
	}
	s.peerWrites++
	cp := *peer
	s.peers[id] = &cp
	return nil
}

func (s *fakeStore) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.settings))
	for id := range s.settings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fakeStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsWrites + s.peerWrites
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *fakeNotifier) Publish(_ context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

var errDisk = errors.New("disk full")
