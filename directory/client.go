package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

const (
	recommendationsPath = "/v1/servers/recommendations"
	countriesPath       = "/v1/servers/countries"
	statsPath           = "/server/stats"

	// maxBodySize bounds any single response.
	maxBodySize = 16 << 20
)

// Client queries the directory over HTTPS.
type Client struct {
	baseURL       string
	http          *http.Client
	tunnelAddress string
	userAgent     string
	log           common.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTunnelAddress sets the local tunnel address attached to candidates.
func WithTunnelAddress(addr string) Option {
	return func(c *Client) { c.tunnelAddress = addr }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger replaces the package logger.
func WithLogger(l common.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for baseURL. timeout bounds every request.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = common.DefaultAPIBaseURL
	}
	if timeout <= 0 {
		timeout = common.DefaultRequestTimeout
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: timeout},
		tunnelAddress: common.DefaultTunnelAddress,
		userAgent:     common.AppName,
		log:           common.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Recommendations returns the recommended NordLynx servers for countryID,
// best first. countryID 0 asks for the global recommendation; limit <= 0
// leaves the count to the service.
func (c *Client) Recommendations(ctx context.Context, countryID, limit int) ([]vpn.CandidateServer, error) {
	q := url.Values{}
	q.Set("filters[servers_technologies][identifier]", common.TechnologyIdentifier)
	if countryID != common.QuickCountryID {
		q.Set("filters[country_id]", strconv.Itoa(countryID))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var servers []apiServer
	if err := c.getJSON(ctx, recommendationsPath+"?"+q.Encode(), &servers); err != nil {
		return nil, err
	}

	candidates := make([]vpn.CandidateServer, 0, len(servers))
	for i, s := range servers {
		cand, err := s.candidate(c.tunnelAddress)
		if err != nil {
			// no fallback to a lower-ranked server: the whole lookup fails
			return nil, fmt.Errorf("server %d (%q): %w", i, s.Hostname, err)
		}
		candidates = append(candidates, cand)
	}
	c.log.Debug("Directory: %d candidate(s) for country %d", len(candidates), countryID)
	return candidates, nil
}

// Countries lists the countries known to the directory.
func (c *Client) Countries(ctx context.Context) ([]vpn.Country, error) {
	var countries []vpn.Country
	if err := c.getJSON(ctx, countriesPath, &countries); err != nil {
		return nil, err
	}
	return countries, nil
}

// ServerLoad returns the live load percent of hostname. It accepts both
// the per-server stats document {"percent": N} and the full stats map
// keyed by hostname.
func (c *Client) ServerLoad(ctx context.Context, hostname string) (int, error) {
	if hostname == "" {
		return 0, fmt.Errorf("%w: empty hostname", common.ErrDirectoryUnavailable)
	}
	var doc map[string]json.RawMessage
	if err := c.getJSON(ctx, statsPath+"/"+url.PathEscape(hostname), &doc); err != nil {
		return 0, err
	}

	if raw, ok := doc["percent"]; ok {
		return decodePercent(raw, hostname)
	}
	if raw, ok := doc[hostname]; ok {
		var entry struct {
			Percent json.RawMessage `json:"percent"`
		}
		if err := json.Unmarshal(raw, &entry); err == nil && entry.Percent != nil {
			return decodePercent(entry.Percent, hostname)
		}
	}
	return 0, fmt.Errorf("%w: no load reported for %s", common.ErrDirectoryUnavailable, hostname)
}

func decodePercent(raw json.RawMessage, hostname string) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("%w: load of %s: %v", common.ErrDirectoryUnavailable, hostname, err)
	}
	return int(f + 0.5), nil
}

// getJSON performs a GET against the directory and decodes the body.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDirectoryUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", common.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("%w: GET %s: %v", common.ErrDirectoryUnavailable, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("GET %s -> %d (%v)", path, resp.StatusCode, time.Since(started).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: GET %s: HTTP %d", common.ErrDirectoryUnavailable, path, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: GET %s: empty response", common.ErrDirectoryUnavailable, path)
		}
		return fmt.Errorf("%w: GET %s: decode: %v", common.ErrDirectoryUnavailable, path, err)
	}
	return nil
}
