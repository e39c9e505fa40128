// Package vpn implements NordLynx profile reconciliation.
// This file contains the Manager, which runs the reconciler over every
// configured profile and collects the results of a run.
package vpn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/config"
)

// Report summarises one reconciliation run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Results  []Result
}

// Err combines the errors of every failed profile, nil when none failed.
func (r *Report) Err() error {
	var err error
	for _, res := range r.Results {
		if res.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", res.Label, res.Err))
		}
	}
	return err
}

// ErrExceptCancelled is Err without the profiles that only failed because
// the run was cancelled. A run interrupted by shutdown is not a failure.
func (r *Report) ErrExceptCancelled() error {
	var err error
	for _, res := range r.Results {
		if res.Err != nil && !isCancelled(res.Err) {
			err = multierr.Append(err, fmt.Errorf("%s: %w", res.Label, res.Err))
		}
	}
	return err
}

func isCancelled(err error) bool {
	return errors.Is(err, common.ErrCancelled) || errors.Is(err, context.Canceled)
}

// Failed returns the number of failed profiles.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			n++
		}
	}
	return n
}

// Counts tallies results per outcome.
func (r *Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Progress receives per-profile updates while a run is in flight.
type Progress interface {
	// Begin is called before profile index (0-based) of total starts.
	Begin(label string, index, total int)
	// Done is called once the profile has a result.
	Done(res Result)
}

// Runner performs one reconciliation run.
type Runner interface {
	Run(ctx context.Context) *Report
}

// PolicyFromConfig extracts the reconciliation policy from cfg.
// privateKey takes precedence over cfg.PrivateKey when non-empty.
func PolicyFromConfig(cfg *config.Config, privateKey string) Policy {
	if privateKey == "" {
		privateKey = cfg.PrivateKey
	}
	return Policy{
		PrivateKey: privateKey,
		DNS:        append([]string{}, cfg.DNS...),
		Address:    cfg.Address,
		Keepalive:  cfg.Keepalive,
		Limit:      cfg.Limit,
		MaxLoad:    cfg.MaxLoad,
		StrictVPN:  cfg.StrictVPN.Or(true),
		RouteDNS:   cfg.RouteDNS.Or(true),
	}
}

// Manager orchestrates reconciliation runs.
type Manager struct {
	cfg        *config.Config
	directory  Directory
	reconciler *Reconciler
	observers  []Observer
	progress   Progress
	clock      clock.Clock
	log        common.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithObservers registers observers notified after every run.
func WithObservers(obs ...Observer) ManagerOption {
	return func(m *Manager) { m.observers = append(m.observers, obs...) }
}

// WithProgress registers a progress sink.
func WithProgress(p Progress) ManagerOption {
	return func(m *Manager) { m.progress = p }
}

// WithManagerClock replaces the wall clock of the manager and its reconciler.
func WithManagerClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
		m.reconciler.clock = c
	}
}

// WithManagerLogger replaces the logger of the manager and its reconciler.
func WithManagerLogger(l common.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = l
		m.reconciler.log = l
	}
}

// NewManager creates a manager for the profiles configured in cfg.
func NewManager(cfg *config.Config, dir Directory, store ProfileStore, notifier Notifier, privateKey string, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:        cfg,
		directory:  dir,
		reconciler: NewReconciler(dir, store, notifier, PolicyFromConfig(cfg, privateKey)),
		clock:      clock.New(),
		log:        common.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetProgress replaces the progress sink. It must not be called while a
// run is in flight.
func (m *Manager) SetProgress(p Progress) {
	m.progress = p
}

// target is one profile slot of a run.
type target struct {
	label string
	quick bool
}

func (m *Manager) targets() []target {
	var out []target
	if m.cfg.Recommended {
		out = append(out, target{label: common.QuickCountryName, quick: true})
	}
	for _, name := range m.cfg.Countries {
		out = append(out, target{label: strings.TrimSpace(name)})
	}
	return out
}

// Run reconciles the quick-connect profile (when enabled) and then every
// configured country, in order. A failure only affects its own profile.
func (m *Manager) Run(ctx context.Context) *Report {
	report := &Report{
		RunID:   uuid.NewString(),
		Started: m.clock.Now(),
	}
	targets := m.targets()
	m.log.Info("Run %s: reconciling %d profile(s)", report.RunID, len(targets))

	var (
		countries    []Country
		countriesErr error
		listed       bool
	)

	for i, t := range targets {
		if m.progress != nil {
			m.progress.Begin(t.label, i, len(targets))
		}

		var res Result
		switch {
		case ctx.Err() != nil:
			res = Result{Label: t.label}.fail(fmt.Errorf("%w: %v", common.ErrCancelled, ctx.Err()))
			if t.quick {
				res.ProfileID = QuickProfileID()
			}
		case t.quick:
			res = m.reconcile(ctx, nil, t.label)
		default:
			if !listed {
				countries, countriesErr = m.directory.Countries(ctx)
				listed = true
			}
			res = m.reconcileCountry(ctx, t.label, countries, countriesErr)
		}

		m.logResult(res)
		report.Results = append(report.Results, res)
		if m.progress != nil {
			m.progress.Done(res)
		}
	}

	report.Finished = m.clock.Now()
	for _, obs := range m.observers {
		if err := obs.Observe(ctx, report); err != nil {
			m.log.Warn("Run %s: observer failed: %v", report.RunID, err)
		}
	}
	return report
}

func (m *Manager) reconcileCountry(ctx context.Context, name string, countries []Country, listErr error) Result {
	if listErr != nil {
		return Result{Label: name}.fail(listErr)
	}
	country, ok := FindCountry(countries, name)
	if !ok {
		return Result{Label: name}.fail(fmt.Errorf("%w: %q", common.ErrCountryNotFound, name))
	}
	return m.reconcile(ctx, &country, name)
}

// reconcile resolves the best candidate for a slot and hands it to the
// reconciler. A nil country selects the quick-connect slot.
func (m *Manager) reconcile(ctx context.Context, country *Country, label string) Result {
	countryID, profileID := common.QuickCountryID, QuickProfileID()
	if country != nil {
		countryID, profileID = country.ID, ProfileID(country.ID, country.Name)
	}

	fail := func(err error) Result {
		return Result{Label: label, ProfileID: profileID}.fail(err)
	}

	limit := m.reconciler.policy.Limit
	candidates, err := m.directory.Recommendations(ctx, countryID, limit)
	if err != nil {
		return fail(err)
	}
	best, err := SelectBest(candidates, limit)
	if err != nil {
		return fail(fmt.Errorf("country %d: %w", countryID, err))
	}

	res := m.reconciler.Reconcile(ctx, NewDesiredProfile(country, best), country == nil)
	res.Label = label
	return res
}

func (m *Manager) logResult(res Result) {
	if res.Err != nil {
		m.log.Error("Profile %s (%s): %s: %v", res.Label, res.ProfileID, common.FailureKind(res.Err), res.Err)
		return
	}
	server := ""
	if res.Settings != nil {
		server = res.Settings.ServerName
	}
	m.log.Info("Profile %s (%s): %s %s", res.Label, res.ProfileID, res.Outcome, server)
}

// FindCountry matches name against the directory's countries by name or
// ISO code, ignoring case.
func FindCountry(countries []Country, name string) (Country, bool) {
	name = strings.TrimSpace(name)
	for _, c := range countries {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	for _, c := range countries {
		if c.Code != "" && strings.EqualFold(c.Code, name) {
			return c, true
		}
	}
	return Country{}, false
}
