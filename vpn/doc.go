// Package vpn implements NordLynx profile reconciliation.
//
// This package implements the core of lynxsync:
//
//   - Profile model: ProfileSettings and PeerConfig, the two artifacts
//     persisted per profile, and the identity every profile is keyed by
//   - Reconciler: compares a freshly fetched candidate server against the
//     persisted profile and decides to create, keep, refresh or switch
//   - Manager: runs the reconciler for the quick-connect profile and each
//     configured country, one after another, and collects a Report
//   - Scheduler: repeats Manager runs on an interval
//
// # Reconciliation Flow
//
// A typical run:
//
//  1. Manager resolves the quick-connect profile and each country to the
//     best candidate server offered by the Directory
//  2. Reconciler loads the persisted settings (absence means creation)
//  3. The decision policy picks Created, KeptSame, Refreshed or Switched
//  4. Settings and peer config are written for every outcome but KeptSame
//  5. A change event is published only when the server was switched
//
// # Collaborators
//
// The directory service, the profile store and the change notifier are
// consumed through the Directory, ProfileStore and Notifier interfaces;
// implementations live in the directory, store and notify packages.
//
// # Thread Safety
//
// A Manager run is strictly sequential: no two reconciliations of the same
// run overlap, so profile records need no locking. Scheduler serialises runs.
package vpn
