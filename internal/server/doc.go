// Package server wires the sync backend together and runs it.
//
// This package orchestrates all components:
//   - Task store, optionally restored from the newest backup
//   - WebSocket listener, connection registry, broadcaster and message router
//   - REST API with Gin (CORS, rate limiting, metrics middleware)
//   - Backup on start and the daily reminder scheduler
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger (production or development)
//  3. Build metrics, store, backup and reminder services
//  4. Setup WebSocket and HTTP surfaces
//  5. Restore and back up, then start both listeners
//  6. Graceful shutdown when the context is canceled
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg, logger)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
