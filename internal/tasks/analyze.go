package tasks

import (
	"context"

	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/services"
	"github.com/desertthunder/polish/internal/sorter"
)

// Analysis is a dry run of a sort.
type Analysis struct {
	CollectionID     string          `json:"playlist_id"`
	Spec             models.SortSpec `json:"spec"`
	Total            int             `json:"total"`
	MovesNeeded      int             `json:"moves_needed"`
	EstimatedSeconds int             `json:"estimated_seconds"`
	Warning          string          `json:"warning,omitempty"`
}

// Sorted reports whether the playlist already matches the requested order.
func (a *Analysis) Sorted() bool { return a.MovesNeeded == 0 }

// Analyze fetches the playlist and reports what a sort with spec would do, without changing anything.
func (r *JobRunner) Analyze(ctx context.Context, collectionID string, spec models.SortSpec) (*Analysis, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	items, err := services.FetchAll(ctx, r.remote, collectionID, nil)
	if err != nil {
		return nil, err
	}
	if r.opts.Cache != nil {
		if err := r.opts.Cache.Put(ctx, items, r.now()); err != nil {
			r.logger.Warn("failed to cache track metadata", "error", err)
		}
	}

	order := sorter.TargetOrder(items, spec.Field, spec.Direction)
	moves := sorter.MovesNeeded(items, sorter.Apply(items, order))

	a := &Analysis{
		CollectionID:     collectionID,
		Spec:             spec,
		Total:            len(items),
		MovesNeeded:      moves,
		EstimatedSeconds: sorter.EstimateSeconds(spec.Method, len(items), moves),
	}
	if spec.Method == models.MethodFast {
		a.Warning = fastResetsWarning
	}
	return a, nil
}
