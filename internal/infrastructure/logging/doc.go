// Package logging provides structured logging using uber/zap.
//
// Two output modes:
//   - Production: JSON lines for machine parsing
//   - Development: colored console output
//
// Components take a *Logger and derive a named child with Named so every
// line carries its origin ("ws", "router", "backup", ...).
//
// Example Usage:
//
//	logger := logging.NewOrNop(logging.DefaultConfig())
//	log := logger.Named("ws")
//	log.Info("client connected", logging.ConnID(id))
package logging
