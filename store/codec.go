package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

func encodeSettings(s *vpn.ProfileSettings) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil settings", common.ErrPersistence)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: encode settings: %v", common.ErrPersistence, err)
	}
	return data, nil
}

func decodeSettings(data []byte) (*vpn.ProfileSettings, error) {
	var s vpn.ProfileSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptProfile, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.ServerSubnets == nil {
		s.ServerSubnets = []string{}
	}
	return &s, nil
}

func encodePeer(p *vpn.PeerConfig) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil peer config", common.ErrPersistence)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: encode peer config: %v", common.ErrPersistence, err)
	}
	return data, nil
}

func decodePeer(data []byte) (*vpn.PeerConfig, error) {
	var p vpn.PeerConfig
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptProfile, err)
	}
	return &p, nil
}

// checkID rejects ids that would escape the store's namespace.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: invalid profile id %q", common.ErrPersistence, id)
	}
	return nil
}

// managed reports whether id belongs to a profile this tool maintains.
func managed(id string) bool {
	return strings.HasPrefix(id, common.ProfileIDPrefix+"-")
}
