// Package oplog keeps the undo log for bulk playlist mutations.
//
// Every entry stores the version token the remote reported right after the mutation. Undo refuses
// to replay an entry once the live token has moved on, so edits made elsewhere are never clobbered.
package oplog

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/repositories"
	"github.com/desertthunder/polish/internal/services"
	"github.com/desertthunder/polish/internal/shared"
)

// ConflictMessage is returned to callers when the playlist moved on since the entry was recorded.
const ConflictMessage = "Playlist changed since this action; undo not available. Refresh and try again if you just updated."

// DefaultRetention is how long entries stay undoable.
const DefaultRetention = 7 * 24 * time.Hour

// Log records and reverses operations against a remote [services.Collection].
type Log struct {
	ops       *repositories.OperationRepository
	remote    services.Collection
	retention time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// Option configures a [Log].
type Option func(*Log)

// WithRetention overrides [DefaultRetention].
func WithRetention(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.retention = d
		}
	}
}

// WithClock replaces [time.Now].
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithLog sets the logger.
func WithLog(logger *log.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func New(ops *repositories.OperationRepository, remote services.Collection, opts ...Option) *Log {
	l := &Log{
		ops:       ops,
		remote:    remote,
		retention: DefaultRetention,
		logger:    log.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordRequest is what a mutation reports once it has confirmed the remote's new token.
type RecordRequest struct {
	CollectionID   string
	OwnerID        string
	SnapshotBefore string
	SnapshotAfter  string
	Payload        models.OpPayload
	ChangesMade    bool
}

// Entry is an operation annotated with whether it can be undone right now.
type Entry struct {
	*models.Operation
	Undoable bool `json:"undoable"`
}

// UndoResult describes a completed undo.
type UndoResult struct {
	Operation     *models.Operation `json:"operation"`
	Restored      int               `json:"restored"`
	SnapshotAfter string            `json:"snapshot_after"`
	Message       string            `json:"message"`
}

// sweep drops expired entries. Failures are logged and never block the caller.
func (l *Log) sweep(ctx context.Context) {
	n, err := l.ops.DeleteExpired(ctx, l.now())
	if err != nil {
		l.logger.Warn("expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		l.logger.Debug("expired undo entries removed", "count", n)
	}
}

// Record stores a new entry that expires after the retention horizon.
func (l *Log) Record(ctx context.Context, req RecordRequest) (*models.Operation, error) {
	l.sweep(ctx)

	if req.Payload == nil {
		return nil, fmt.Errorf("%w: payload is required", shared.ErrValidation)
	}

	now := l.now().UTC()
	op := &models.Operation{
		CollectionID:   req.CollectionID,
		OwnerID:        req.OwnerID,
		Type:           req.Payload.OpType(),
		SnapshotBefore: req.SnapshotBefore,
		SnapshotAfter:  req.SnapshotAfter,
		Payload:        req.Payload,
		ChangesMade:    req.ChangesMade,
		CreatedAt:      now,
		ExpiresAt:      now.Add(l.retention),
	}
	if err := l.ops.Create(ctx, op); err != nil {
		return nil, err
	}

	l.logger.Info("operation recorded", "id", op.ID, "type", op.Type, "playlist", op.CollectionID, "changes", op.ChangesMade)
	return op, nil
}

// Undo reverses the newest undoable entry for the playlist and owner.
func (l *Log) Undo(ctx context.Context, collectionID, ownerID string) (*UndoResult, error) {
	l.sweep(ctx)

	op, err := l.ops.LatestUndoable(ctx, collectionID, ownerID, l.now())
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, fmt.Errorf("%w: no undoable operations found for this playlist", shared.ErrNotFound)
	}

	current, err := l.remote.VersionToken(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read current version: %w", err)
	}
	if current != op.SnapshotAfter {
		l.logger.Warn("undo blocked by version mismatch",
			"playlist", collectionID, "expected", op.SnapshotAfter, "current", current)
		return nil, fmt.Errorf("%w: %s", shared.ErrConflict, ConflictMessage)
	}

	result := &UndoResult{Operation: op}
	switch p := op.Payload.(type) {
	case models.DuplicatesRemovePayload:
		result.Restored, err = l.restoreRemoved(ctx, collectionID, p)
		result.Message = fmt.Sprintf("Restored %d tracks", result.Restored)
	case models.SortReorderPayload:
		result.Restored, err = l.restoreOrder(ctx, collectionID, p)
		result.Message = fmt.Sprintf("Restored previous order (%d tracks)", result.Restored)
	default:
		err = fmt.Errorf("%w: unsupported undo type %s", shared.ErrValidation, op.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := l.ops.MarkUndone(ctx, op.ID); err != nil {
		return nil, err
	}
	op.Undone = true

	if token, err := l.remote.VersionToken(ctx, collectionID); err == nil {
		result.SnapshotAfter = token
	} else {
		l.logger.Warn("failed to read version after undo", "playlist", collectionID, "error", err)
	}

	l.logger.Info("operation undone", "id", op.ID, "type", op.Type, "playlist", collectionID, "restored", result.Restored)
	return result, nil
}

// restoreRemoved re-inserts removed occurrences in ascending position order, so each recorded
// position is valid once the items before it are back.
func (l *Log) restoreRemoved(ctx context.Context, collectionID string, p models.DuplicatesRemovePayload) (int, error) {
	if len(p.RemovedItems) == 0 {
		return 0, fmt.Errorf("%w: no removal data stored for undo", shared.ErrValidation)
	}

	items := slices.Clone(p.RemovedItems)
	slices.SortStableFunc(items, func(a, b models.RemovedItem) int { return a.Position - b.Position })

	restored := 0
	for _, it := range items {
		if it.URI == "" {
			continue
		}
		if _, err := l.remote.InsertItem(ctx, collectionID, it.URI, it.Position); err != nil {
			return restored, fmt.Errorf("failed to restore %s at %d: %w", it.URI, it.Position, err)
		}
		restored++
	}
	return restored, nil
}

// restoreOrder writes the recorded pre-sort order back with the same batching as a fast sort.
func (l *Log) restoreOrder(ctx context.Context, collectionID string, p models.SortReorderPayload) (int, error) {
	if len(p.OriginalOrder) == 0 {
		return 0, fmt.Errorf("%w: stored sort order is empty", shared.ErrValidation)
	}
	if _, err := services.ReplaceAll(ctx, l.remote, collectionID, p.OriginalOrder, nil); err != nil {
		return 0, fmt.Errorf("failed to restore previous order: %w", err)
	}
	return len(p.OriginalOrder), nil
}

// History lists entries for a playlist, newest first, each marked undoable when it is not
// undone, has not expired, changed something and still matches the live version token.
func (l *Log) History(ctx context.Context, collectionID, ownerID string, limit int) ([]Entry, error) {
	l.sweep(ctx)

	ops, err := l.ops.History(ctx, collectionID, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return l.annotate(ctx, ops), nil
}

// AllHistory lists entries across every playlist of the owner.
func (l *Log) AllHistory(ctx context.Context, ownerID string, limit int) ([]Entry, error) {
	l.sweep(ctx)

	ops, err := l.ops.HistoryForOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return l.annotate(ctx, ops), nil
}

// Get returns one entry owned by ownerID.
func (l *Log) Get(ctx context.Context, id int64, ownerID string) (*models.Operation, error) {
	l.sweep(ctx)

	op, err := l.ops.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: history entry %d", shared.ErrNotFound, id)
	}
	return op, nil
}

// annotate fetches the live token once per playlist. A playlist whose token cannot be read has
// no undoable entries.
func (l *Log) annotate(ctx context.Context, ops []*models.Operation) []Entry {
	now := l.now()
	tokens := map[string]string{}
	entries := make([]Entry, 0, len(ops))

	for _, op := range ops {
		token, seen := tokens[op.CollectionID]
		if !seen {
			var err error
			if token, err = l.remote.VersionToken(ctx, op.CollectionID); err != nil {
				l.logger.Warn("failed to fetch current version for history", "playlist", op.CollectionID, "error", err)
				token = ""
			}
			tokens[op.CollectionID] = token
		}

		undoable := !op.Undone && op.ChangesMade && !op.Expired(now) &&
			op.SnapshotAfter != "" && op.SnapshotAfter == token
		entries = append(entries, Entry{Operation: op, Undoable: undoable})
	}
	return entries
}
