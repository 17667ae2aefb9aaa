// Package ui implements the sort job monitor using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [JobListView] : Browse the user's recent sort jobs
//  2. [WatchView] : Follow one job with a spinner and progress bar
//  3. [DoneView] : Show how the job finished
//
// The [Model] polls job state through a [JobSource] on a fixed interval, so a job running in another
// process (e.g. the serve command) is followed the same way as one running in-process. When the job
// runs in-process its progress events can also be fed through a channel for finer updates.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, c, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
