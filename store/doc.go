// Package store persists NordLynx profiles.
//
// Every profile is two JSON documents: the settings record and the
// WireGuard peer config. Three backends implement vpn.ProfileStore:
//
//   - FileStore writes <dir>/<profileId>.settings and <dir>/<profileId>.json,
//     the layout the on-box VPN client reads
//   - ConsulStore keeps both documents under a Consul KV prefix
//   - MemoryStore keeps them in memory, for tests and dry runs
//
// All backends report a missing profile as common.ErrProfileNotFound, an
// undecodable one as common.ErrCorruptProfile and I/O failures as
// common.ErrPersistence.
package store
