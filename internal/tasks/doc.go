// Package tasks runs bulk playlist operations with persisted progress.
//
// # Sort Jobs
//
// [JobRunner] owns the life of a sort job:
//
//  1. [JobRunner.Submit] : admission control
//     - At most one pending or in-progress job per playlist; a second request gets the first job back
//     - At most [DefaultMaxActivePerUser] active jobs per user, otherwise [shared.ErrAdmission]
//     - Creates the job as pending and queues it for the worker pool
//
//  2. Worker execution
//     - Fetches the playlist a page at a time, checking for cancellation after each page
//     - Computes the target order, the number of misplaced tracks and an estimate
//     - Runs the fast or preserve strategy from the sorter package
//     - Records an undo entry and completes, or ends cancelled or failed
//
//  3. [JobRunner.Status], [JobRunner.Cancel], [JobRunner.Recover]
//     - Pending jobs that wait too long are failed on read
//     - Cancellation is cooperative through the [CancellationRegistry]
//     - Recover fails whatever a previous process left running
//
// # Progress Reporting
//
// Every state change is written to the job row and sent as a [ProgressUpdate] on the optional
// Updates channel. Sends use select with default so a slow reader never stalls a worker.
//
// # Duplicates
//
// [Deduplicator] finds repeated tracks and removes selected occurrences by position, recording the
// removed items so the removal can be undone.
package tasks
