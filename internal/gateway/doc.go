// ABOUTME: Package gateway exposes the messaging subsystem over HTTP
// ABOUTME: JSON API plus SSE and WebSocket change feeds, JWT-authenticated

// Package gateway serves the courier HTTP API.
//
// All endpoints under /api require a bearer token identifying the
// viewer. Reads and writes are delegated to the conversation service,
// which enforces the access policy; the gateway's job is transport,
// JSON shaping, and error-to-status mapping.
package gateway
