package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

var (
	_ vpn.ProfileStore = (*FileStore)(nil)
	_ vpn.ProfileStore = (*ConsulStore)(nil)
	_ vpn.ProfileStore = (*MemoryStore)(nil)
)

// fakeKV is an in-memory stand-in for the Consul KV endpoint.
type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(key string, _ *consulapi.QueryOptions) (*consulapi.KVPair, *consulapi.QueryMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	v, ok := f.data[key]
	if !ok {
		return nil, &consulapi.QueryMeta{}, nil
	}
	return &consulapi.KVPair{Key: key, Value: v}, &consulapi.QueryMeta{}, nil
}

func (f *fakeKV) Put(p *consulapi.KVPair, _ *consulapi.WriteOptions) (*consulapi.WriteMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.data[p.Key] = append([]byte{}, p.Value...)
	return &consulapi.WriteMeta{}, nil
}

func (f *fakeKV) Keys(prefix, _ string, _ *consulapi.QueryOptions) ([]string, *consulapi.QueryMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, &consulapi.QueryMeta{}, nil
}

func sampleSettings(id string) *vpn.ProfileSettings {
	desired := vpn.NewDesiredProfile(&vpn.Country{ID: 3, Name: "France"}, vpn.CandidateServer{
		Hostname: "fr1.nordvpn.com", Station: "1.2.3.4", City: "Paris", Load: 20,
	})
	s := vpn.NewSettings(desired, vpn.Policy{StrictVPN: true, RouteDNS: true}, time.Unix(1700000000, 0))
	s.ProfileID = id
	return s
}

func samplePeer() *vpn.PeerConfig {
	return vpn.BuildPeerConfig(vpn.CandidateServer{Hostname: "fr1.nordvpn.com", PublicKey: "pk"}, vpn.Policy{
		PrivateKey: "priv", DNS: []string{"1.1.1.1"}, Address: "10.5.0.2/24",
	})
}

func backends(t *testing.T) map[string]vpn.ProfileStore {
	return map[string]vpn.ProfileStore{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "profiles")),
		"consul": newConsulStore(newFakeKV(), "lynxsync/profiles"),
		"memory": NewMemoryStore(),
	}
}

func TestProfileStore_Contract(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "lynx-3-France"

			_, err := st.ReadSettings(ctx, id)
			assert.ErrorIs(t, err, common.ErrProfileNotFound)
			_, err = st.ReadPeerConfig(ctx, id)
			assert.ErrorIs(t, err, common.ErrProfileNotFound)

			ids, err := st.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)

			want := sampleSettings(id)
			require.NoError(t, st.WriteSettings(ctx, id, want))
			require.NoError(t, st.WritePeerConfig(ctx, id, samplePeer()))

			got, err := st.ReadSettings(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want.ProfileID, got.ProfileID)
			assert.Equal(t, want.ServerName, got.ServerName)
			assert.Equal(t, want.Load, got.Load)
			assert.True(t, want.CreatedDate.Equal(got.CreatedDate.Time))
			assert.Equal(t, []string{}, got.ServerSubnets)

			peer, err := st.ReadPeerConfig(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, samplePeer(), peer)

			require.NoError(t, st.WriteSettings(ctx, "lynx-0-Quick", sampleSettings("lynx-0-Quick")))
			ids, err = st.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"lynx-0-Quick", "lynx-3-France"}, ids)

			// Returned records are copies.
			got.ServerName = "mutated"
			again, err := st.ReadSettings(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "fr1.nordvpn.com", again.ServerName)
		})
	}
}

func TestProfileStore_InvalidID(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "..", "../etc/passwd", `a\b`} {
				err := st.WriteSettings(context.Background(), id, sampleSettings("x"))
				assert.ErrorIs(t, err, common.ErrPersistence, "id %q", id)
			}
		})
	}
}

func TestProfileStore_NilDocuments(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, st.WriteSettings(context.Background(), "lynx-1-A", nil), common.ErrPersistence)
			assert.ErrorIs(t, st.WritePeerConfig(context.Background(), "lynx-1-A", nil), common.ErrPersistence)
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wg_profile")
	st := NewFileStore(dir)
	ctx := context.Background()

	require.NoError(t, st.WriteSettings(ctx, "lynx-3-France", sampleSettings("lynx-3-France")))
	require.NoError(t, st.WritePeerConfig(ctx, "lynx-3-France", samplePeer()))

	data, err := os.ReadFile(filepath.Join(dir, "lynx-3-France.settings"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"createdDate":"1700000000"`)
	assert.Contains(t, string(data), `"profileId":"lynx-3-France"`)

	info, err := os.Stat(filepath.Join(dir, "lynx-3-France.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "peer config holds the private key")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestFileStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	st := NewFileStore(dir)

	tests := map[string]string{
		"lynx-1-Broken":   `{"profileId": "lynx-1-Bro`,
		"lynx-2-Empty":    ``,
		"lynx-3-NoServer": `{"profileId": "lynx-3-NoServer"}`,
		"lynx-4-BadDate":  `{"profileId": "lynx-4-BadDate", "serverName": "x", "createdDate": "soon"}`,
	}
	for id, body := range tests {
		require.NoError(t, os.WriteFile(filepath.Join(dir, id+".settings"), []byte(body), 0644))
	}

	for id := range tests {
		t.Run(id, func(t *testing.T) {
			_, err := st.ReadSettings(context.Background(), id)
			assert.ErrorIs(t, err, common.ErrCorruptProfile)
			assert.False(t, errors.Is(err, common.ErrProfileNotFound))
		})
	}
}

func TestFileStore_ReadsLegacyNumericDate(t *testing.T) {
	dir := t.TempDir()
	body := `{"profileId":"lynx-3-France","serverName":"fr1.nordvpn.com","createdDate":1700000000.5,"load":{"percent":7}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lynx-3-France.settings"), []byte(body), 0644))

	got, err := NewFileStore(dir).ReadSettings(context.Background(), "lynx-3-France")
	require.NoError(t, err)
	assert.True(t, got.CreatedDate.Equal(time.UnixMilli(1700000000500)))
	assert.Equal(t, 7, got.Load.Percent)
}

func TestFileStore_ListIgnoresForeignProfiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"lynx-3-France.settings", "lynx-3-France.json", "mullvad-se.settings", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "lynx-9-Dir.settings"), 0755))

	ids, err := NewFileStore(dir).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"lynx-3-France"}, ids)
}

func TestFileStore_ListMissingDir(t *testing.T) {
	ids, err := NewFileStore(filepath.Join(t.TempDir(), "absent")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_UnwritableDir(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	err := NewFileStore(filepath.Join(blocker, "profiles")).WriteSettings(context.Background(), "lynx-1-A", sampleSettings("lynx-1-A"))
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestConsulStore_Keys(t *testing.T) {
	kv := newFakeKV()
	st := newConsulStore(kv, "lynxsync/profiles")
	ctx := context.Background()

	require.NoError(t, st.WriteSettings(ctx, "lynx-3-France", sampleSettings("lynx-3-France")))
	require.NoError(t, st.WritePeerConfig(ctx, "lynx-3-France", samplePeer()))

	assert.Contains(t, kv.data, "lynxsync/profiles/lynx-3-France/settings")
	assert.Contains(t, kv.data, "lynxsync/profiles/lynx-3-France/peer")
}

func TestConsulStore_Errors(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("connection refused")
	st := newConsulStore(kv, "p/")
	ctx := context.Background()

	_, err := st.ReadSettings(ctx, "lynx-1-A")
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.ErrorIs(t, st.WriteSettings(ctx, "lynx-1-A", sampleSettings("lynx-1-A")), common.ErrPersistence)
	_, err = st.List(ctx)
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestMemoryStore_PutRawCorrupt(t *testing.T) {
	st := NewMemoryStore()
	st.PutRaw("lynx-1-A", []byte("not json"))

	_, err := st.ReadSettings(context.Background(), "lynx-1-A")
	assert.ErrorIs(t, err, common.ErrCorruptProfile)
}
