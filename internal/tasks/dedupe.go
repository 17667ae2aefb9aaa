package tasks

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/oplog"
	"github.com/desertthunder/polish/internal/services"
	"github.com/desertthunder/polish/internal/shared"
)

// MatchReason says why an occurrence was grouped.
type MatchReason string

const (
	ReasonExact   MatchReason = "exact"
	ReasonSimilar MatchReason = "similar"
)

// Occurrence is one position of a duplicated track.
type Occurrence struct {
	URI        string      `json:"uri"`
	Position   int         `json:"position"`
	TrackID    string      `json:"track_id"`
	Title      string      `json:"name"`
	Artists    []string    `json:"artists"`
	Album      string      `json:"album"`
	AddedAt    time.Time   `json:"added_at"`
	DurationMS int         `json:"duration_ms"`
	Reason     MatchReason `json:"reason"`
}

// DuplicateGroup collects occurrences of the same track, first occurrence first.
type DuplicateGroup struct {
	Key         string       `json:"match_key"`
	TrackID     string       `json:"track_id"`
	Title       string       `json:"name"`
	Artists     []string     `json:"artists"`
	Occurrences []Occurrence `json:"occurrences"`
}

// Extra is the number of occurrences beyond the first.
func (g DuplicateGroup) Extra() int { return len(g.Occurrences) - 1 }

// Selection names one occurrence to delete.
type Selection struct {
	URI      string `json:"uri"`
	Position int    `json:"position"`
}

// RemoveResult describes a completed removal.
type RemoveResult struct {
	Removed       int                  `json:"removed"`
	Items         []models.RemovedItem `json:"removed_items"`
	Operation     *models.Operation    `json:"operation,omitempty"`
	SnapshotAfter string               `json:"snapshot_after"`
	Message       string               `json:"message"`
}

// Deduplicator finds and removes repeated tracks in a playlist.
type Deduplicator struct {
	remote services.Collection
	log    *oplog.Log
	logger *log.Logger
}

func NewDeduplicator(remote services.Collection, opLog *oplog.Log, logger *log.Logger) *Deduplicator {
	if logger == nil {
		logger = log.Default()
	}
	return &Deduplicator{remote: remote, log: opLog, logger: logger}
}

// Find groups occurrences by track id. With similar set, tracks are grouped by normalized
// title and first artist instead, and only repeats of the same track id are marked exact.
func (d *Deduplicator) Find(ctx context.Context, collectionID string, similar bool) ([]DuplicateGroup, error) {
	items, err := services.FetchAll(ctx, d.remote, collectionID, nil)
	if err != nil {
		return nil, err
	}
	return groupDuplicates(items, similar), nil
}

func groupDuplicates(items []models.Item, similar bool) []DuplicateGroup {
	index := map[string]int{}
	var groups []DuplicateGroup

	for pos, it := range items {
		if it.ID == "" {
			continue
		}
		key := it.ID
		if similar {
			key = shared.NormalizeTrackKey(it.Title, it.Artist())
		}

		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DuplicateGroup{Key: key, TrackID: it.ID, Title: it.Title, Artists: it.Artists})
		}
		groups[i].Occurrences = append(groups[i].Occurrences, Occurrence{
			URI:        it.URI,
			Position:   pos,
			TrackID:    it.ID,
			Title:      it.Title,
			Artists:    it.Artists,
			Album:      it.Album,
			AddedAt:    it.AddedAt,
			DurationMS: it.DurationMS,
		})
	}

	dupes := groups[:0]
	for _, g := range groups {
		if len(g.Occurrences) < 2 {
			continue
		}
		counts := map[string]int{}
		for _, o := range g.Occurrences {
			counts[o.TrackID]++
		}
		for j := range g.Occurrences {
			g.Occurrences[j].Reason = ReasonExact
			if similar && counts[g.Occurrences[j].TrackID] < 2 {
				g.Occurrences[j].Reason = ReasonSimilar
			}
		}
		dupes = append(dupes, g)
	}
	return dupes
}

// Remove deletes the selected occurrences and records an undo entry.
//
// Selections are checked against the live order; one naming a uri that is not at its position is
// dropped. Nothing is changed or recorded when no selection survives.
func (d *Deduplicator) Remove(ctx context.Context, collectionID, ownerID string, selections []Selection) (*RemoveResult, error) {
	if len(selections) == 0 {
		return &RemoveResult{Message: "No duplicates selected"}, nil
	}

	before, err := d.remote.VersionToken(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	items, err := services.FetchAll(ctx, d.remote, collectionID, nil)
	if err != nil {
		return nil, err
	}

	var positions []int
	for _, sel := range selections {
		if sel.Position < 0 || sel.Position >= len(items) {
			d.logger.Warn("selection out of range, skipping", "uri", sel.URI, "position", sel.Position)
			continue
		}
		if items[sel.Position].URI != sel.URI || sel.URI == "" {
			d.logger.Warn("selection does not match live order, skipping", "uri", sel.URI, "position", sel.Position)
			continue
		}
		positions = append(positions, sel.Position)
	}
	slices.Sort(positions)
	positions = slices.Compact(positions)

	if len(positions) == 0 {
		return &RemoveResult{SnapshotAfter: before, Message: "No duplicates removed"}, nil
	}

	removed := make([]models.RemovedItem, 0, len(positions))
	for _, pos := range positions {
		it := items[pos]
		removed = append(removed, models.RemovedItem{
			URI:      it.URI,
			Position: pos,
			Name:     it.Title,
			Artists:  it.Artists,
			Album:    it.Album,
			AddedAt:  it.AddedAt.UTC().Format(time.RFC3339),
		})
	}

	descending := slices.Clone(positions)
	slices.Reverse(descending)

	d.logger.Info("removing duplicates", "playlist", collectionID, "count", len(descending), "snapshot", before)
	after, err := d.remote.RemovePositions(ctx, collectionID, descending, before)
	if err != nil {
		return nil, fmt.Errorf("failed to remove duplicates: %w", err)
	}

	final := context.WithoutCancel(ctx)
	if token, err := d.remote.VersionToken(final, collectionID); err != nil {
		d.logger.Warn("failed to re-read version token, using last reported", "error", err)
	} else {
		after = token
	}

	res := &RemoveResult{
		Removed:       len(removed),
		Items:         removed,
		SnapshotAfter: after,
		Message:       "Duplicates removed",
	}
	if d.log != nil {
		op, err := d.log.Record(final, oplog.RecordRequest{
			CollectionID:   collectionID,
			OwnerID:        ownerID,
			SnapshotBefore: before,
			SnapshotAfter:  after,
			Payload:        models.DuplicatesRemovePayload{RemovedItems: removed},
			ChangesMade:    true,
		})
		if err != nil {
			d.logger.Warn("failed to record undo entry", "error", err)
		}
		res.Operation = op
	}
	return res, nil
}
