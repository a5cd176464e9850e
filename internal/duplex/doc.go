// Package duplex implements the live event socket between the agent and the platform.
//
// # Overview
//
// A Channel owns exactly one websocket connection at a time. It dials the platform
// with the agent token in the query string, sends a liveness probe as soon as the
// socket opens, and keeps sending one every heartbeat interval.
//
// # Frames
//
// Every frame is a single JSON text message:
//
//	{"type": "message.new", "data": {...}}
//
// Frames that are not valid JSON are dropped. Valid frames are dispatched to the
// handlers registered for their type, in registration order:
//
//	unsubscribe := ch.On("message.new", func(f duplex.Frame) { ... })
//	defer unsubscribe()
//
// # Reconnection
//
// Only the end of a session (dial failure, read error, or remote close) schedules a
// reconnect. The delay is min(base*2^attempts, max); the attempt counter resets on
// every successful open. Disconnect stops the heartbeat, cancels a pending reconnect
// wait, and closes the socket.
package duplex
