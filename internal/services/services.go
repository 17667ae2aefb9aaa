package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/polish/internal/models"
)

// PageSize is the largest page the remote returns and the largest batch it accepts.
const PageSize = 100

// ItemPage is one page of a remote playlist.
type ItemPage struct {
	Items []models.Item
	Total int
	Next  bool
}

// Collection is the remote ordered playlist that jobs, undo and duplicate removal mutate.
//
// Version tokens are opaque. Every mutation returns the token of the playlist after the change.
type Collection interface {
	// Items returns up to limit items starting at offset.
	Items(ctx context.Context, id string, offset, limit int) (*ItemPage, error)

	// VersionToken returns the current snapshot token.
	VersionToken(ctx context.Context, id string) (string, error)

	// ReplaceItems replaces the whole playlist with at most [PageSize] uris.
	ReplaceItems(ctx context.Context, id string, uris []string) (string, error)

	// AppendItems adds at most [PageSize] uris to the end.
	AppendItems(ctx context.Context, id string, uris []string) (string, error)

	// MoveRange moves length items starting at start so they land before insertBefore.
	MoveRange(ctx context.Context, id string, start, length, insertBefore int, token string) (string, error)

	// InsertItem inserts uri at position.
	InsertItem(ctx context.Context, id, uri string, position int) (string, error)

	// RemovePositions removes the items at the given zero-based positions.
	RemovePositions(ctx context.Context, id string, positions []int, token string) (string, error)
}

// FetchAll pages through a playlist. onPage, when set, runs after each page with the running
// count and the reported total; a non-nil return aborts the fetch with that error.
func FetchAll(ctx context.Context, c Collection, id string, onPage func(loaded, total int) error) ([]models.Item, error) {
	var items []models.Item
	offset := 0
	for {
		page, err := c.Items(ctx, id, offset, PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch items at offset %d: %w", offset, err)
		}

		items = append(items, page.Items...)
		offset += len(page.Items)

		if onPage != nil {
			if err := onPage(len(items), page.Total); err != nil {
				return nil, err
			}
		}

		if !page.Next || len(page.Items) == 0 {
			return items, nil
		}
	}
}

// ReplaceAll writes uris as the full contents of the playlist: the first batch replaces, the
// rest append. after, when set, runs after each call with the number of uris written so far.
func ReplaceAll(ctx context.Context, c Collection, id string, uris []string, after func(written int) error) (string, error) {
	var token string
	var err error

	if len(uris) == 0 {
		return c.ReplaceItems(ctx, id, nil)
	}

	for start := 0; start < len(uris); start += PageSize {
		end := min(start+PageSize, len(uris))
		batch := uris[start:end]

		if start == 0 {
			token, err = c.ReplaceItems(ctx, id, batch)
		} else {
			token, err = c.AppendItems(ctx, id, batch)
		}
		if err != nil {
			return "", fmt.Errorf("failed to write items %d-%d: %w", start, end, err)
		}

		if after != nil {
			if err := after(end); err != nil {
				return token, err
			}
		}
	}
	return token, nil
}
