// Package directory is a client for the NordVPN server directory.
//
// It answers the three questions reconciliation asks:
//
//   - which NordLynx servers are recommended for a country (or globally,
//     for quick connect), via /v1/servers/recommendations
//   - which countries exist, via /v1/servers/countries
//   - how loaded a given server is right now, via /server/stats
//
// Every failure to reach or decode the service is reported as
// common.ErrDirectoryUnavailable; servers lacking NordLynx key material
// are reported as common.ErrMalformedCandidate.
package directory
