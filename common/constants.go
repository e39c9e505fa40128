// Package common provides shared constants, types, and utilities
// used across lynxsync.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "lynxsync"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "lynxsync"
	// ProcessName is sent as the origin of every change event.
	ProcessName = "lynxsync"
)

// File names used by the application.
const (
	ConfigFileName  = "config.yaml"
	EnvFileName     = ".env"
	HistoryFileName = "history.db"
	LogFileName     = "lynxsync.log"

	// SettingsFileSuffix and PeerFileSuffix name the two artifacts
	// persisted for every profile.
	SettingsFileSuffix = ".settings"
	PeerFileSuffix     = ".json"
)

// DefaultHistoryRetention bounds the run ledger.
const DefaultHistoryRetention = 90 * 24 * time.Hour

// Directory service defaults.
const (
	DefaultAPIBaseURL     = "https://api.nordvpn.com"
	DefaultRequestTimeout = 30 * time.Second
	// TechnologyIdentifier selects NordLynx servers in directory queries.
	TechnologyIdentifier = "wireguard_udp"
	// PublicKeyMetadata names the technology metadata entry holding the server key.
	PublicKeyMetadata = "public_key"
)

// WireGuard profile defaults.
const (
	DefaultProfileDir    = "/home/pi/.firewalla/run/wg_profile"
	DefaultTunnelAddress = "10.5.0.2/24"
	DefaultDNS           = "1.1.1.1"
	DefaultKeepalive     = 20
	WireGuardPort        = 51820
	ProfileSubtype       = "wireguard"
	AllTrafficRoute      = "0.0.0.0/0"
)

// Profile identity.
const (
	// ProfileIDPrefix marks profiles managed by this tool (NordLynx).
	ProfileIDPrefix = "lynx"
	// QuickCountryID and QuickCountryName are the sentinel country of the
	// quick-connect profile.
	QuickCountryID   = 0
	QuickCountryName = "Quick"
	// QuickDisplayName prefixes the quick-connect display name.
	QuickDisplayName = "Nord Quick"
)

// EventSettingsChanged is the type of the event published when a profile
// switches server.
const EventSettingsChanged = "VPNClient:SettingsChanged"
