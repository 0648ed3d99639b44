// Package camera holds the live, in-memory state of secondary-camera
// sessions: per-session connection status and the most recent frame snapshot.
//
// Nothing here is durable. A process restart clears both stores, which is
// accepted: this is a live staging cache for the examiner view and the
// frame-analysis proxy, not a record of truth.
//
// The two stores deliberately use different staleness policies. Connection
// entries are evicted by idle time (last write or read), because an entry
// someone is still looking at is still useful. Frames are evicted by write
// age alone: a frame's freshness is a property of when it was produced, and
// reading a 30-second-old frame does not make it any less stale.
package camera
