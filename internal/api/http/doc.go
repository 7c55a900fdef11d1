// Package http exposes the task list over REST with Gin.
//
// The routes mirror the WebSocket operations for clients that cannot hold
// a socket open. Every mutation is also pushed to WebSocket clients as a
// sync_notification, so both surfaces stay consistent.
//
// Errors are returned as {"error": "..."} with 400 for invalid input, 404
// for unknown tasks and 500 for everything else.
package http
