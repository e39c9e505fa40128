package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

const (
	settingsKey = "settings"
	peerKey     = "peer"
)

// kv is the part of the Consul KV API the store uses.
// *consulapi.KV satisfies it.
type kv interface {
	Get(key string, q *consulapi.QueryOptions) (*consulapi.KVPair, *consulapi.QueryMeta, error)
	Put(p *consulapi.KVPair, q *consulapi.WriteOptions) (*consulapi.WriteMeta, error)
	Keys(prefix, separator string, q *consulapi.QueryOptions) ([]string, *consulapi.QueryMeta, error)
}

// ConsulStore keeps profiles in Consul KV as <prefix><profileId>/settings
// and <prefix><profileId>/peer.
type ConsulStore struct {
	kv     kv
	prefix string
}

// NewConsulStore connects to the agent at addr (empty for the client
// default, which honours CONSUL_HTTP_ADDR).
func NewConsulStore(addr, prefix string) (*ConsulStore, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: consul client: %v", common.ErrPersistence, err)
	}
	return newConsulStore(cli.KV(), prefix), nil
}

func newConsulStore(kv kv, prefix string) *ConsulStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ConsulStore{kv: kv, prefix: prefix}
}

func (s *ConsulStore) key(id, doc string) string {
	return s.prefix + id + "/" + doc
}

func (s *ConsulStore) get(ctx context.Context, id, doc string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	pair, _, err := s.kv.Get(s.key(id, doc), (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: consul get %s: %v", common.ErrPersistence, s.key(id, doc), err)
	}
	if pair == nil {
		return nil, common.ErrProfileNotFound
	}
	return pair.Value, nil
}

func (s *ConsulStore) put(ctx context.Context, id, doc string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	pair := &consulapi.KVPair{Key: s.key(id, doc), Value: data}
	if _, err := s.kv.Put(pair, (&consulapi.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: consul put %s: %v", common.ErrPersistence, pair.Key, err)
	}
	return nil
}

// ReadSettings loads the settings record of id.
func (s *ConsulStore) ReadSettings(ctx context.Context, id string) (*vpn.ProfileSettings, error) {
	data, err := s.get(ctx, id, settingsKey)
	if err != nil {
		return nil, err
	}
	return decodeSettings(data)
}

// ReadPeerConfig loads the peer config of id.
func (s *ConsulStore) ReadPeerConfig(ctx context.Context, id string) (*vpn.PeerConfig, error) {
	data, err := s.get(ctx, id, peerKey)
	if err != nil {
		return nil, err
	}
	return decodePeer(data)
}

// WriteSettings replaces the settings record of id.
func (s *ConsulStore) WriteSettings(ctx context.Context, id string, settings *vpn.ProfileSettings) error {
	data, err := encodeSettings(settings)
	if err != nil {
		return err
	}
	return s.put(ctx, id, settingsKey, data)
}

// WritePeerConfig replaces the peer config of id.
func (s *ConsulStore) WritePeerConfig(ctx context.Context, id string, peer *vpn.PeerConfig) error {
	data, err := encodePeer(peer)
	if err != nil {
		return err
	}
	return s.put(ctx, id, peerKey, data)
}

// List returns the ids of all profiles under the prefix.
func (s *ConsulStore) List(ctx context.Context) ([]string, error) {
	keys, _, err := s.kv.Keys(s.prefix, "", (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: consul keys %s: %v", common.ErrPersistence, s.prefix, err)
	}
	ids := []string{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, s.prefix)
		id, doc, ok := strings.Cut(rest, "/")
		if ok && doc == settingsKey && id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
