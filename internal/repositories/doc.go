// Package repositories implements SQLite persistence for all domain entities.
//
// Key Implementations:
//   - [JobRepository] : sort jobs, admission queries, startup recovery and age-based cleanup
//   - [OperationRepository] : the undo log, with expiry and latest-undoable lookups
//   - [ScheduleRepository] : recurring schedules, one per (playlist, owner, action), and due queries
//   - [TrackCache] : track metadata cached while fetching playlists, swept by TTL
//
// Timestamps are written in UTC so that the text comparisons SQLite performs on them
// (next_run_at <= now, expires_at > now) order correctly.
package repositories
