// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Countdown is the pre-serve countdown shown before a rally begins.
const Countdown = 3 * time.Second

// PauseGrace caps how long a paused game waits for a disconnected player
// to come back before the match is decided by forfeit.
const PauseGrace = 10 * time.Second

// WriteStall caps how long a slow websocket peer can block a frame write
// before the connection is considered dead.
const WriteStall = 10 * time.Second
