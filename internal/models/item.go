package models

import "time"

// Item is one track occurrence in a remote playlist.
//
// The same track can appear more than once; URI identifies the track, the position in the
// enclosing slice identifies the occurrence.
type Item struct {
	ID          string    `json:"id"`
	URI         string    `json:"uri"`
	Title       string    `json:"title"`
	Artists     []string  `json:"artists"`
	Album       string    `json:"album"`
	ReleaseDate string    `json:"release_date"`
	AddedAt     time.Time `json:"added_at"`
	DurationMS  int       `json:"duration_ms"`
}

// Artist returns the first credited artist, or "".
func (i Item) Artist() string {
	if len(i.Artists) == 0 {
		return ""
	}
	return i.Artists[0]
}

// URIs extracts the URI of every item, keeping order and skipping local tracks without one.
func URIs(items []Item) []string {
	uris := make([]string, 0, len(items))
	for _, it := range items {
		if it.URI != "" {
			uris = append(uris, it.URI)
		}
	}
	return uris
}
