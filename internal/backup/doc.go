// Package backup writes JSON snapshots of the task list to disk.
//
// Files are named backup_YYYYMMDD_HHMMSS.json (or .json.gz when compression
// is on) and hold {backup_time, total_tasks, tasks}. After every backup only
// the newest Keep files are retained. The server takes one backup at startup
// and can restore the newest one into an empty store.
package backup
