// Package reminder mails a daily digest of incomplete tasks.
//
// The digest groups tasks by category and is rendered with html/template;
// task content is run through a bluemonday UGC policy so simple markup
// survives and scripts do not. A Service keeps an in-memory send log which
// drives the startup check:
//   - a successful send in the last 5 minutes skips
//   - a failed send in the last 30 minutes skips
//   - a successful send earlier today skips
//   - otherwise the digest is sent immediately
//
// After the startup check the scheduler fires every day at the configured
// hour in the configured time zone.
package reminder
