package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

var _ vpn.Directory = (*Client)(nil)

const recommendationsJSON = `[
  {
    "hostname": "fr7.nordvpn.com",
    "station": "185.1.1.7",
    "load": 31,
    "locations": [{"country": {"id": 74, "name": "France", "code": "FR", "city": {"name": "Paris"}}}],
    "technologies": [
      {"identifier": "openvpn_udp", "metadata": []},
      {"identifier": "wireguard_udp", "metadata": [{"name": "public_key", "value": "key-fr7"}]}
    ]
  },
  {
    "hostname": "fr9.nordvpn.com",
    "station": "185.1.1.9",
    "load": 12,
    "locations": [{"country": {"id": 74, "name": "France", "code": "FR", "city": {"name": "Marseille"}}}],
    "technologies": [{"identifier": "wireguard_udp", "metadata": [{"value": "key-fr9"}]}]
  }
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 5*time.Second, WithLogger(common.NopLogger{}))
}

func TestRecommendations(t *testing.T) {
	var gotQuery map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, recommendationsPath, r.URL.Path)
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(recommendationsJSON))
	})

	cands, err := c.Recommendations(context.Background(), 74, 5)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, []string{"wireguard_udp"}, gotQuery["filters[servers_technologies][identifier]"])
	assert.Equal(t, []string{"74"}, gotQuery["filters[country_id]"])
	assert.Equal(t, []string{"5"}, gotQuery["limit"])

	assert.Equal(t, vpn.CandidateServer{
		Hostname:      "fr7.nordvpn.com",
		Station:       "185.1.1.7",
		PublicKey:     "key-fr7",
		CountryID:     74,
		CountryName:   "France",
		City:          "Paris",
		Load:          31,
		TunnelAddress: common.DefaultTunnelAddress,
	}, cands[0])
	assert.Equal(t, "key-fr9", cands[1].PublicKey, "unnamed metadata entry is the key")
}

func TestRecommendations_QuickOmitsCountryAndLimit(t *testing.T) {
	var gotQuery map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	})

	cands, err := c.Recommendations(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, cands)
	assert.NotContains(t, gotQuery, "filters[country_id]")
	assert.NotContains(t, gotQuery, "limit")
}

func TestRecommendations_Malformed(t *testing.T) {
	const good = `{"hostname": "fr2", "load": 50, "technologies": [{"identifier": "wireguard_udp", "metadata": [{"name": "public_key", "value": "k"}]}]}`

	tests := []struct {
		name string
		body string
		host string
	}{
		{
			name: "no wireguard technology",
			body: `[{"hostname": "x1", "technologies": [{"identifier": "openvpn_tcp"}]}]`,
			host: "x1",
		},
		{
			name: "no key metadata",
			body: `[{"hostname": "x1", "technologies": [{"identifier": "wireguard_udp", "metadata": []}]}]`,
			host: "x1",
		},
		{
			name: "best ranked server malformed",
			body: `[{"hostname": "fr1", "load": 5, "technologies": [{"identifier": "openvpn_udp"}]}, ` + good + `]`,
			host: "fr1",
		},
		{
			name: "lower ranked server malformed",
			body: `[` + good + `, {"hostname": "fr3", "technologies": []}]`,
			host: "fr3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			cands, err := c.Recommendations(context.Background(), 74, 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrMalformedCandidate)
			assert.Contains(t, err.Error(), tt.host)
			assert.Nil(t, cands)
		})
	}
}

func TestCountries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, countriesPath, r.URL.Path)
		_, _ = w.Write([]byte(`[{"id": 74, "name": "France", "code": "FR", "cities": []}, {"id": 228, "name": "United States", "code": "US"}]`))
	})

	countries, err := c.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []vpn.Country{
		{ID: 74, Name: "France", Code: "FR"},
		{ID: 228, Name: "United States", Code: "US"},
	}, countries)
}

func TestServerLoad(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"per-server document", `{"percent": 40}`, 40, false},
		{"stats map", `{"us1.nordvpn.com": {"percent": 17}, "us2.nordvpn.com": {"percent": 3}}`, 17, false},
		{"fractional", `{"percent": 39.6}`, 40, false},
		{"missing", `{"us2.nordvpn.com": {"percent": 3}}`, 0, true},
		{"not a number", `{"percent": "busy"}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, statsPath+"/us1.nordvpn.com", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := c.ServerLoad(context.Background(), "us1.nordvpn.com")
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrDirectoryUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerLoad_EmptyHostname(t *testing.T) {
	c := New("http://127.0.0.1:0", time.Second)
	_, err := c.ServerLoad(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrDirectoryUnavailable)
}

func TestDirectoryUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"garbage", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html>`)) }},
		{"empty", func(w http.ResponseWriter, r *http.Request) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Countries(context.Background())
			assert.ErrorIs(t, err, common.ErrDirectoryUnavailable)
			assert.Equal(t, common.KindDirectoryUnavailable, common.FailureKind(err))
		})
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second, WithLogger(common.NopLogger{}))
	_, err := c.Recommendations(context.Background(), 0, 1)
	assert.ErrorIs(t, err, common.ErrDirectoryUnavailable)
}

func TestCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Countries(ctx)
	assert.ErrorIs(t, err, common.ErrCancelled)
}

func TestUserAgent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "lynxsync/test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[]`))
	})
	WithUserAgent("lynxsync/test")(c)

	_, err := c.Countries(context.Background())
	require.NoError(t, err)
}
