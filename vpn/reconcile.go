package vpn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yllada/lynxsync/common"
)

// Outcome represents the result of reconciling one profile.
type Outcome int

const (
	// OutcomeFailed means the profile could not be reconciled this run.
	OutcomeFailed Outcome = iota
	// OutcomeCreated means no usable record existed and one was written.
	OutcomeCreated
	// OutcomeKeptSame means nothing changed and nothing was written.
	OutcomeKeptSame
	// OutcomeRefreshed means the server stayed and its metadata was updated.
	OutcomeRefreshed
	// OutcomeSwitched means the profile moved to a different server.
	OutcomeSwitched
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "Created"
	case OutcomeKeptSame:
		return "KeptSame"
	case OutcomeRefreshed:
		return "Refreshed"
	case OutcomeSwitched:
		return "Switched"
	default:
		return "Failed"
	}
}

// Persists reports whether the outcome writes the profile.
func (o Outcome) Persists() bool {
	return o == OutcomeCreated || o == OutcomeRefreshed || o == OutcomeSwitched
}

// Result describes the reconciliation of a single profile.
type Result struct {
	// Label is the configured country name, or "Quick".
	Label     string
	ProfileID string
	Outcome   Outcome
	// Settings is the record as it stands after the run.
	Settings *ProfileSettings
	// Previous is the record read before the run, nil when none was usable.
	Previous *ProfileSettings
	// Notified is true when the change event was delivered.
	Notified bool
	Err      error
}

func (r Result) fail(err error) Result {
	r.Outcome = OutcomeFailed
	r.Err = err
	return r
}

// ShouldSwitch is the load gate applied to country profiles: move only
// when the current server is busier than the candidate and, if a ceiling
// is configured, busier than the ceiling too.
func ShouldSwitch(currentLoad, candidateLoad int, maxLoad *int) bool {
	if currentLoad <= candidateLoad {
		return false
	}
	return maxLoad == nil || currentLoad > *maxLoad
}

// SelectBest picks the candidate to use from a directory response.
// With limit 1 the directory's own ranking is trusted; otherwise the
// least loaded candidate wins, ties keeping directory order.
func SelectBest(candidates []CandidateServer, limit int) (CandidateServer, error) {
	if len(candidates) == 0 {
		return CandidateServer{}, common.ErrNoCandidates
	}
	if len(candidates) == 1 || limit == 1 {
		return candidates[0], nil
	}
	sorted := append([]CandidateServer{}, candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Load < sorted[j].Load
	})
	return sorted[0], nil
}

// Reconciler brings one persisted profile in line with a desired candidate.
type Reconciler struct {
	directory Directory
	store     ProfileStore
	notifier  Notifier
	policy    Policy
	clock     clock.Clock
	log       common.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) ReconcilerOption {
	return func(r *Reconciler) { r.clock = c }
}

// WithLogger replaces the package logger.
func WithLogger(l common.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.log = l }
}

// NewReconciler creates a reconciler. A nil notifier disables events.
func NewReconciler(dir Directory, store ProfileStore, notifier Notifier, policy Policy, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		directory: dir,
		store:     store,
		notifier:  notifier,
		policy:    policy,
		clock:     clock.New(),
		log:       common.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the policy the reconciler applies.
func (r *Reconciler) Policy() Policy {
	return r.policy
}

// Reconcile compares desired against the persisted profile, writes the
// decision and publishes a change event when the server was switched.
// quick selects the unconditional switching rule of the quick-connect
// profile.
func (r *Reconciler) Reconcile(ctx context.Context, desired DesiredProfile, quick bool) Result {
	res := Result{ProfileID: desired.ProfileID}

	existing, err := r.store.ReadSettings(ctx, desired.ProfileID)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrProfileNotFound):
		existing = nil
	case errors.Is(err, common.ErrCorruptProfile):
		r.log.Warn("Discarding unreadable profile %s: %v", desired.ProfileID, err)
		existing = nil
	default:
		return res.fail(persistenceError("read settings", desired.ProfileID, err))
	}

	now := r.clock.Now()
	var (
		next    *ProfileSettings
		peer    *PeerConfig
		outcome Outcome
	)

	switch {
	case existing == nil:
		next, peer, outcome = r.create(desired, now)
	case existing.ProfileID != desired.ProfileID:
		r.log.Warn("Replacing record %s found under key %s", existing.ProfileID, desired.ProfileID)
		next, peer, outcome = r.create(desired, now)
	case existing.ServerName == desired.Candidate.Hostname:
		res.Previous = existing.Clone()
		next = existing.Clone()
		outcome = OutcomeKeptSame
		if next.refresh(desired) {
			outcome = OutcomeRefreshed
		}
		peer = BuildPeerConfig(desired.Candidate, r.policy)
	default:
		res.Previous = existing.Clone()
		next = existing.Clone()
		outcome, peer, err = r.decide(ctx, desired, quick, next, now)
		if err != nil {
			res.Settings = res.Previous
			return res.fail(err)
		}
	}

	res.Outcome = outcome
	res.Settings = next
	r.log.Debug("Profile %s: %s (server %s, load %d%%)", desired.ProfileID, outcome, next.ServerName, next.Load.Percent)

	if !outcome.Persists() {
		return res
	}
	if err := r.store.WriteSettings(ctx, desired.ProfileID, next); err != nil {
		return res.fail(persistenceError("write settings", desired.ProfileID, err))
	}
	if err := r.store.WritePeerConfig(ctx, desired.ProfileID, peer); err != nil {
		return res.fail(persistenceError("write peer config", desired.ProfileID, err))
	}

	if outcome == OutcomeSwitched {
		res.Notified = r.publish(ctx, next)
	}
	return res
}

func (r *Reconciler) create(desired DesiredProfile, now time.Time) (*ProfileSettings, *PeerConfig, Outcome) {
	return NewSettings(desired, r.policy, now), BuildPeerConfig(desired.Candidate, r.policy), OutcomeCreated
}

// decide handles a persisted profile pointing at a different server than
// the candidate. next is updated in place.
func (r *Reconciler) decide(ctx context.Context, desired DesiredProfile, quick bool, next *ProfileSettings, now time.Time) (Outcome, *PeerConfig, error) {
	cand := desired.Candidate
	if quick {
		next.adopt(desired, now)
		return OutcomeSwitched, BuildPeerConfig(cand, r.policy), nil
	}

	current, err := r.directory.ServerLoad(ctx, next.ServerName)
	if err != nil {
		if !errors.Is(err, common.ErrDirectoryUnavailable) && !isCancelled(err) {
			err = fmt.Errorf("%w: load of %s: %v", common.ErrDirectoryUnavailable, next.ServerName, err)
		}
		return OutcomeFailed, nil, err
	}

	if ShouldSwitch(current, cand.Load, r.policy.MaxLoad) {
		r.log.Info("Profile %s: switching %s (%d%%) -> %s (%d%%)",
			desired.ProfileID, next.ServerName, current, cand.Hostname, cand.Load)
		next.adopt(desired, now)
		return OutcomeSwitched, BuildPeerConfig(cand, r.policy), nil
	}

	if next.Load.Percent == current {
		return OutcomeKeptSame, nil, nil
	}
	next.Load.Percent = current

	prev, err := r.store.ReadPeerConfig(ctx, desired.ProfileID)
	switch {
	case err == nil && len(prev.Peers) > 0:
		return OutcomeRefreshed, prev.withPolicy(r.policy), nil
	case err == nil, errors.Is(err, common.ErrProfileNotFound), errors.Is(err, common.ErrCorruptProfile):
		// no usable peer for the current server
		r.log.Warn("Profile %s: peer config unusable (%v), adopting %s", desired.ProfileID, err, cand.Hostname)
		next.adopt(desired, now)
		return OutcomeSwitched, BuildPeerConfig(cand, r.policy), nil
	default:
		return OutcomeFailed, nil, persistenceError("read peer config", desired.ProfileID, err)
	}
}

func (r *Reconciler) publish(ctx context.Context, settings *ProfileSettings) bool {
	if r.notifier == nil {
		return false
	}
	if err := r.notifier.Publish(ctx, NewSettingsChangedEvent(settings.Clone())); err != nil {
		r.log.Warn("Failed to publish change for %s: %v", settings.ProfileID, err)
		return false
	}
	return true
}

// refresh copies drift of the same server into s and reports whether
// anything changed.
func (s *ProfileSettings) refresh(desired DesiredProfile) bool {
	changed := false
	if s.Load.Percent != desired.Candidate.Load {
		s.Load.Percent = desired.Candidate.Load
		changed = true
	}
	if desired.Candidate.Station != "" && s.ServerDDNS != desired.Candidate.Station {
		s.ServerDDNS = desired.Candidate.Station
		changed = true
	}
	if desired.DisplayName != "" && s.DisplayName != desired.DisplayName {
		s.DisplayName = desired.DisplayName
		changed = true
	}
	return changed
}

// adopt points s at the desired candidate.
func (s *ProfileSettings) adopt(desired DesiredProfile, now time.Time) {
	s.ServerName = desired.Candidate.Hostname
	s.ServerDDNS = desired.Candidate.Station
	s.Load.Percent = desired.Candidate.Load
	if desired.DisplayName != "" {
		s.DisplayName = desired.DisplayName
	}
	updated := NewUnixTime(now)
	s.UpdatedDate = &updated
}

func persistenceError(op, profileID string, err error) error {
	if errors.Is(err, common.ErrPersistence) {
		return fmt.Errorf("%s %s: %w", op, profileID, err)
	}
	return fmt.Errorf("%w: %s %s: %v", common.ErrPersistence, op, profileID, err)
}
