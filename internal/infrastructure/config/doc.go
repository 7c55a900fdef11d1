// Package config provides 12-factor configuration for the sync server.
//
// Configuration is loaded from environment variables with defaults.
// CLI flags in cmd/server override the ports and log mode.
//
// Sections:
//   - Server: REST listener (PORT, HOST)
//   - WebSocket: sync listener (WS_PORT, WS_HOST, WS_READ_BUFFER,
//     WS_HANDSHAKE_TIMEOUT, WS_ACCEPT_POLL, WS_MAX_PAYLOAD)
//   - Logging: LOG_LEVEL, LOG_DEV
//   - RateLimit: RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - Backup: BACKUP_DIR, BACKUP_KEEP, BACKUP_GZIP, BACKUP_ON_START, BACKUP_RESTORE
//   - Reminder: REMINDER_ENABLED, REMINDER_HOUR, REMINDER_TZ
//   - SMTP: SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD,
//     SMTP_SENDER, SMTP_RECIPIENT
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("sync listener on %s\n", cfg.WebSocket.Addr())
package config
