// Package main is the entry point for the TodoSync backend.
//
// The process serves two ports:
//
//	REST API (Gin)        :5000  /api/tasks, /health, /metrics
//	WebSocket sync server :5001  hand-rolled RFC 6455 listener
//
// Every task mutation, from either surface, is broadcast to all connected
// WebSocket clients as a sync_notification.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 5000 -ws-port 5001
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
