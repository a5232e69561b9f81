// Package server implements the HTTP and WebSocket transport for the room
// relay.
//
// The implementation is organized into specialized files for the hub,
// clients, routing, origin checks, and HTTP handlers. The relay core in
// internal/relay never touches sockets; this package feeds it connection
// lifecycle events and raw frames, and delivers its outbound events.
package server
