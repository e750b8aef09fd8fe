// Package api implements the HTTP REST API and WebSocket server for the
// medication tracker.
//
// This package provides:
//   - REST endpoints for entities, state history, service calls, config
//     entries, setup and options flows, groups and devices
//   - Audit log listing and system stats
//   - WebSocket hub for live state_changed and low_stock events
//   - JWT bearer authentication with role-based permissions and
//     ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Prometheus exposition on the configured metrics path
//
// # Architecture
//
// Handlers never touch a ledger directly. Service calls go through
// tracker.Services, which runs them on the event loop; reads come from the
// state machine, which is safe for concurrent use. State changes reach
// WebSocket clients through the exporter, which calls Hub.Broadcast.
//
// # Graceful Degradation
//
// The server operates without MQTT or InfluxDB. Their absence is reported
// by the health endpoint but never fails a request.
package api
