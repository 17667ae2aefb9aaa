package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/polish/internal/shared"
)

// OpType tags an [Operation] and selects its payload variant.
type OpType string

const (
	OpDuplicatesRemove OpType = "duplicates_remove"
	OpSortReorder      OpType = "sort_reorder"
)

// OpPayload is the reversal data of an operation.
//
// The set of variants is closed: [DuplicatesRemovePayload] and [SortReorderPayload].
type OpPayload interface {
	OpType() OpType
	opPayload()
}

// RemovedItem records one occurrence deleted from a playlist and where it sat.
type RemovedItem struct {
	URI      string   `json:"uri"`
	Position int      `json:"position"`
	Name     string   `json:"name"`
	Artists  []string `json:"artists"`
	Album    string   `json:"album"`
	AddedAt  string   `json:"added_at"`
}

// DuplicatesRemovePayload lists the occurrences removed by a duplicate cleanup.
type DuplicatesRemovePayload struct {
	RemovedItems []RemovedItem `json:"removed_items"`
}

func (DuplicatesRemovePayload) OpType() OpType { return OpDuplicatesRemove }
func (DuplicatesRemovePayload) opPayload()     {}

// SortReorderPayload keeps the full pre-sort order so it can be written back.
type SortReorderPayload struct {
	OriginalOrder []string  `json:"original_order"`
	SortBy        SortField `json:"sort_by"`
	Direction     Direction `json:"direction"`
	Method        Method    `json:"method"`
	Source        Source    `json:"source,omitempty"`
	ScheduleID    string    `json:"schedule_id,omitempty"`
	TracksMoved   int       `json:"tracks_moved"`
}

func (SortReorderPayload) OpType() OpType { return OpSortReorder }
func (SortReorderPayload) opPayload()     {}

// EncodePayload serializes p for storage.
func EncodePayload(p OpPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: payload is required", shared.ErrValidation)
	}
	return json.Marshal(p)
}

// DecodePayload parses stored reversal data for the given op type.
func DecodePayload(t OpType, data []byte) (OpPayload, error) {
	switch t {
	case OpDuplicatesRemove:
		var p DuplicatesRemovePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
		}
		return p, nil
	case OpSortReorder:
		var p SortReorderPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown operation type %q", shared.ErrValidation, t)
	}
}

// Operation is one reversible effect on a playlist, kept until ExpiresAt.
type Operation struct {
	ID             int64     `json:"id"`
	CollectionID   string    `json:"playlist_id"`
	OwnerID        string    `json:"user_id"`
	Type           OpType    `json:"op_type"`
	SnapshotBefore string    `json:"snapshot_before"`
	SnapshotAfter  string    `json:"snapshot_after"`
	Payload        OpPayload `json:"payload"`
	ChangesMade    bool      `json:"changes_made"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Undone         bool      `json:"undone"`
}

// Validate checks the operation is complete and its payload matches its type.
func (o *Operation) Validate() error {
	if o.CollectionID == "" || o.OwnerID == "" {
		return fmt.Errorf("%w: playlist and user are required", shared.ErrValidation)
	}
	if o.Payload == nil {
		return fmt.Errorf("%w: payload is required", shared.ErrValidation)
	}
	if o.Payload.OpType() != o.Type {
		return fmt.Errorf("%w: payload %s does not match op type %s", shared.ErrValidation, o.Payload.OpType(), o.Type)
	}
	return nil
}

// Expired reports whether the undo horizon has passed at now.
func (o *Operation) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// Summary is a one-line human description used by history listings.
func (o *Operation) Summary() string {
	switch p := o.Payload.(type) {
	case DuplicatesRemovePayload:
		return fmt.Sprintf("removed %d duplicate tracks", len(p.RemovedItems))
	case SortReorderPayload:
		if !o.ChangesMade {
			return fmt.Sprintf("sort by %s %s (already sorted)", p.SortBy, p.Direction)
		}
		return fmt.Sprintf("sort by %s %s, %d tracks moved (%s)", p.SortBy, p.Direction, p.TracksMoved, p.Method)
	default:
		return string(o.Type)
	}
}
