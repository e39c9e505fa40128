package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

const (
	settingsPerm = 0644
	// Peer configs carry the private key.
	peerPerm = 0600
	dirPerm  = 0755
)

// FileStore keeps profiles as files in a directory shared with the VPN client.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the profile directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) settingsPath(id string) string {
	return filepath.Join(s.dir, id+common.SettingsFileSuffix)
}

func (s *FileStore) peerPath(id string) string {
	return filepath.Join(s.dir, id+common.PeerFileSuffix)
}

// ReadSettings loads the settings record of id.
func (s *FileStore) ReadSettings(_ context.Context, id string) (*vpn.ProfileSettings, error) {
	data, err := s.read(id, s.settingsPath)
	if err != nil {
		return nil, err
	}
	settings, err := decodeSettings(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.settingsPath(id), err)
	}
	return settings, nil
}

// ReadPeerConfig loads the peer config of id.
func (s *FileStore) ReadPeerConfig(_ context.Context, id string) (*vpn.PeerConfig, error) {
	data, err := s.read(id, s.peerPath)
	if err != nil {
		return nil, err
	}
	peer, err := decodePeer(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.peerPath(id), err)
	}
	return peer, nil
}

func (s *FileStore) read(id string, path func(string) string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return data, nil
}

// WriteSettings atomically replaces the settings record of id.
func (s *FileStore) WriteSettings(_ context.Context, id string, settings *vpn.ProfileSettings) error {
	data, err := encodeSettings(settings)
	if err != nil {
		return err
	}
	return s.write(id, s.settingsPath(id), data, settingsPerm)
}

// WritePeerConfig atomically replaces the peer config of id.
func (s *FileStore) WritePeerConfig(_ context.Context, id string, peer *vpn.PeerConfig) error {
	data, err := encodePeer(peer)
	if err != nil {
		return err
	}
	return s.write(id, s.peerPath(id), data, peerPerm)
}

func (s *FileStore) write(id, path string, data []byte, perm os.FileMode) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	if err := common.WriteFileAtomic(path, data, perm); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return nil
}

// List returns the ids of the profiles this tool manages in the directory.
// Other profiles sharing the directory are ignored.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, common.SettingsFileSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, common.SettingsFileSuffix)
		if managed(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
