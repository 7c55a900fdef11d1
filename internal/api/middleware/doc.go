// Package middleware provides gin middleware for the REST API: CORS and
// token-bucket rate limiting (per client IP and global).
package middleware
