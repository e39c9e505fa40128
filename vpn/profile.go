// Package vpn implements NordLynx profile reconciliation.
// This file contains the profile model persisted for every desired
// endpoint and the helpers that build it.
package vpn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/yllada/lynxsync/common"
)

// CandidateServer is a server recommendation freshly fetched from the
// directory. It is never persisted as such.
type CandidateServer struct {
	// Hostname is the server name, e.g. "us1234.nordvpn.com".
	Hostname string
	// Station is the server's routable address.
	Station string
	// PublicKey is the server's NordLynx public key.
	PublicKey   string
	CountryID   int
	CountryName string
	City        string
	// Load is the current utilisation in percent.
	Load int
	// TunnelAddress is the local address assigned inside the tunnel.
	TunnelAddress string
}

// Country is an entry of the directory's country list.
type Country struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// LoadInfo holds the last known load of the active server.
type LoadInfo struct {
	Percent int `json:"percent"`
}

// ProfileSettings is the persisted settings record of a profile.
type ProfileSettings struct {
	// ProfileID never changes for the lifetime of a record.
	ProfileID   string   `json:"profileId"`
	DisplayName string   `json:"displayName"`
	ServerName  string   `json:"serverName"`
	ServerDDNS  string   `json:"serverDDNS"`
	Load        LoadInfo `json:"load"`

	CreatedDate UnixTime  `json:"createdDate"`
	UpdatedDate *UnixTime `json:"updatedDate,omitempty"`

	// Operator policy, set at creation and never overwritten.
	StrictVPN            bool     `json:"strictVPN"`
	RouteDNS             bool     `json:"routeDNS"`
	OverrideDefaultRoute bool     `json:"overrideDefaultRoute"`
	ServerSubnets        []string `json:"serverSubnets"`

	ServerVPNPort int    `json:"serverVPNPort"`
	Subtype       string `json:"subtype"`
}

// Clone returns a deep copy.
func (s *ProfileSettings) Clone() *ProfileSettings {
	if s == nil {
		return nil
	}
	c := *s
	c.ServerSubnets = append([]string{}, s.ServerSubnets...)
	if s.UpdatedDate != nil {
		u := *s.UpdatedDate
		c.UpdatedDate = &u
	}
	return &c
}

// Validate checks the fields every reader relies on.
func (s *ProfileSettings) Validate() error {
	if s.ProfileID == "" {
		return fmt.Errorf("%w: profileId is empty", common.ErrCorruptProfile)
	}
	if s.ServerName == "" {
		return fmt.Errorf("%w: serverName is empty", common.ErrCorruptProfile)
	}
	return nil
}

// PeerConfig is the persisted WireGuard configuration of a profile.
type PeerConfig struct {
	Peers      []PeerEntry `json:"peers"`
	Addresses  []string    `json:"addresses"`
	PrivateKey string      `json:"privateKey"`
	DNS        []string    `json:"dns"`
}

// PeerEntry is the single server peer of a PeerConfig.
type PeerEntry struct {
	PublicKey           string   `json:"publicKey"`
	Endpoint            string   `json:"endpoint"`
	PersistentKeepalive string   `json:"persistentKeepalive"`
	AllowedIPs          []string `json:"allowedIPs"`
}

// DesiredProfile is a profile slot resolved to its best candidate.
type DesiredProfile struct {
	ProfileID   string
	DisplayName string
	Candidate   CandidateServer
}

// ProfileID derives the stable identity of a profile.
func ProfileID(countryID int, countryName string) string {
	return fmt.Sprintf("%s-%d-%s", common.ProfileIDPrefix, countryID, common.SanitizeName(countryName))
}

// QuickProfileID is the fixed identity of the quick-connect profile.
func QuickProfileID() string {
	return ProfileID(common.QuickCountryID, common.QuickCountryName)
}

// NewDesiredProfile binds a candidate to the profile slot of country.
// A nil country selects the quick-connect slot.
func NewDesiredProfile(country *Country, candidate CandidateServer) DesiredProfile {
	if country == nil {
		return DesiredProfile{
			ProfileID:   QuickProfileID(),
			DisplayName: displayName(common.QuickDisplayName, candidate.City),
			Candidate:   candidate,
		}
	}
	return DesiredProfile{
		ProfileID:   ProfileID(country.ID, country.Name),
		DisplayName: displayName(country.Name, candidate.City),
		Candidate:   candidate,
	}
}

func displayName(label, city string) string {
	if city == "" {
		return label
	}
	return fmt.Sprintf("%s (%s)", label, city)
}

// Policy is the slice of operator configuration the reconciler applies.
type Policy struct {
	PrivateKey string
	DNS        []string
	Address    string
	Keepalive  int
	// Limit is the candidate count requested per lookup; 1 means the
	// directory's own ranking is final.
	Limit int
	// MaxLoad, when set, is the load the current server must exceed before
	// a country profile switches.
	MaxLoad   *int
	StrictVPN bool
	RouteDNS  bool
}

// NewSettings builds the record written on first reconciliation.
func NewSettings(desired DesiredProfile, policy Policy, now time.Time) *ProfileSettings {
	return &ProfileSettings{
		ProfileID:            desired.ProfileID,
		DisplayName:          desired.DisplayName,
		ServerName:           desired.Candidate.Hostname,
		ServerDDNS:           desired.Candidate.Station,
		Load:                 LoadInfo{Percent: desired.Candidate.Load},
		CreatedDate:          NewUnixTime(now),
		StrictVPN:            policy.StrictVPN,
		RouteDNS:             policy.RouteDNS,
		OverrideDefaultRoute: true,
		ServerSubnets:        []string{},
		ServerVPNPort:        common.WireGuardPort,
		Subtype:              common.ProfileSubtype,
	}
}

// BuildPeerConfig renders the peer configuration for a candidate.
func BuildPeerConfig(candidate CandidateServer, policy Policy) *PeerConfig {
	address := candidate.TunnelAddress
	if address == "" {
		address = policy.Address
	}
	keepalive := policy.Keepalive
	if keepalive <= 0 {
		keepalive = common.DefaultKeepalive
	}
	return &PeerConfig{
		Peers: []PeerEntry{{
			PublicKey:           candidate.PublicKey,
			Endpoint:            fmt.Sprintf("%s:%d", candidate.Hostname, common.WireGuardPort),
			PersistentKeepalive: strconv.Itoa(keepalive),
			AllowedIPs:          []string{common.AllTrafficRoute},
		}},
		Addresses:  []string{address},
		PrivateKey: policy.PrivateKey,
		DNS:        append([]string{}, policy.DNS...),
	}
}

// withPolicy rewrites the operator-owned fields of an existing peer config
// and keeps its server peer.
func (p *PeerConfig) withPolicy(policy Policy) *PeerConfig {
	out := &PeerConfig{
		Peers:      append([]PeerEntry{}, p.Peers...),
		Addresses:  append([]string{}, p.Addresses...),
		PrivateKey: policy.PrivateKey,
		DNS:        append([]string{}, policy.DNS...),
	}
	if len(out.Addresses) == 0 && policy.Address != "" {
		out.Addresses = []string{policy.Address}
	}
	return out
}

// UnixTime is a timestamp persisted as a string of unix seconds, the form
// the profile consumer expects. It reads back strings and plain numbers.
type UnixTime struct {
	time.Time
}

// NewUnixTime truncates t to milliseconds.
func NewUnixTime(t time.Time) UnixTime {
	return UnixTime{t.Truncate(time.Millisecond)}
}

// MarshalJSON implements json.Marshaler.
func (u UnixTime) MarshalJSON() ([]byte, error) {
	secs := float64(u.UnixMilli()) / 1000
	return json.Marshal(strconv.FormatFloat(secs, 'f', -1, 64))
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *UnixTime) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if raw == "" || raw == "null" {
		*u = UnixTime{}
		return nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid unix timestamp %q: %w", raw, err)
	}
	*u = UnixTime{time.UnixMilli(int64(math.Round(secs * 1000)))}
	return nil
}
