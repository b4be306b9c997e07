// Package connection implements the push transport for lot updates.
//
// The transport:
//   - Holds one WebSocket connection and registers it with a connect message
//   - Tracks server heartbeats; a missed heartbeat closes and reopens the socket
//   - Flags heartbeat skew against the last persisted heartbeat time
//   - Reconnects with exponential backoff and reports itself unavailable
//     after too many consecutive failures, so callers fall back to polling
//   - Hands every other message to the registered handler
package connection
