// Package models defines the domain entities of the polish playlist maintenance service.
//
// The package contains two categories of types:
//
// 1. Remote data: lightweight structs describing what the playlist service returns
//   - [Item] : one track occurrence with the attributes sorts are keyed on
//
// 2. Persistent entities: records stored by the repositories package
//   - [Job] : a sort attempt with its [JobStatus] and progress counters
//   - [Operation] : an undo log entry whose [OpPayload] is a closed set of variants
//   - [Schedule] : a recurring trigger whose [ScheduleParams] depend on its [ActionType]
//
// Tagged payloads are encoded as JSON and decoded back through [DecodePayload] and [DecodeParams],
// so adding a variant means adding a case there.
package models
