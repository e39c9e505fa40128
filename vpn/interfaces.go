package vpn

import (
	"context"

	"github.com/yllada/lynxsync/common"
)

// Directory is the server directory the reconciler queries.
type Directory interface {
	// Recommendations returns up to limit candidates for countryID, best
	// first. Country id 0 asks for the global recommendation.
	Recommendations(ctx context.Context, countryID, limit int) ([]CandidateServer, error)
	// Countries lists the countries the directory knows about.
	Countries(ctx context.Context) ([]Country, error)
	// ServerLoad returns the live load percent of hostname.
	ServerLoad(ctx context.Context, hostname string) (int, error)
}

// ProfileStore persists profile settings and peer configs.
type ProfileStore interface {
	// ReadSettings returns common.ErrProfileNotFound when no record exists
	// and an error wrapping common.ErrCorruptProfile when one exists but
	// cannot be decoded.
	ReadSettings(ctx context.Context, profileID string) (*ProfileSettings, error)
	ReadPeerConfig(ctx context.Context, profileID string) (*PeerConfig, error)
	WriteSettings(ctx context.Context, profileID string, settings *ProfileSettings) error
	WritePeerConfig(ctx context.Context, profileID string, peer *PeerConfig) error
	// List returns the ids of all persisted profiles, sorted.
	List(ctx context.Context) ([]string, error)
}

// Notifier delivers change events to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// Event announces that a profile now points at a different server.
type Event struct {
	Type        string           `json:"type"`
	ProfileID   string           `json:"profileId"`
	Settings    *ProfileSettings `json:"settings"`
	FromProcess string           `json:"fromProcess"`
}

// NewSettingsChangedEvent builds the event published after a switch.
func NewSettingsChangedEvent(settings *ProfileSettings) Event {
	return Event{
		Type:        common.EventSettingsChanged,
		ProfileID:   settings.ProfileID,
		Settings:    settings,
		FromProcess: common.ProcessName,
	}
}

// Observer receives every completed run report.
// The history ledger and the metrics exporter implement it.
type Observer interface {
	Observe(ctx context.Context, report *Report) error
}
