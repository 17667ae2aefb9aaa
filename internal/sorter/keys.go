// package sorter computes playlist orderings and applies them to a remote [services.Collection]
package sorter

import (
	"cmp"
	"strings"
	"time"

	"github.com/desertthunder/polish/internal/models"
)

const (
	missingReleaseDate = "0000-00-00"
	missingAddedAt     = "1970-01-01T00:00:00Z"
)

// Key is a comparable sort key. Text fields use Text, duration uses Num.
type Key struct {
	Text string
	Num  int
}

// Compare orders two keys of the same field.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Num, o.Num); c != 0 {
		return c
	}
	return strings.Compare(k.Text, o.Text)
}

// SortKey extracts the key of item for field. Missing values sort first in ascending order.
func SortKey(item models.Item, field models.SortField) Key {
	switch field {
	case models.FieldTitle:
		return Key{Text: strings.ToLower(item.Title)}
	case models.FieldArtist:
		return Key{Text: strings.ToLower(item.Artist())}
	case models.FieldAlbum:
		return Key{Text: strings.ToLower(item.Album)}
	case models.FieldReleaseDate:
		if item.ReleaseDate == "" {
			return Key{Text: missingReleaseDate}
		}
		return Key{Text: item.ReleaseDate}
	case models.FieldDateAdded:
		if item.AddedAt.IsZero() {
			return Key{Text: missingAddedAt}
		}
		return Key{Text: item.AddedAt.UTC().Format(time.RFC3339)}
	case models.FieldDuration:
		return Key{Num: item.DurationMS}
	default:
		return Key{}
	}
}
