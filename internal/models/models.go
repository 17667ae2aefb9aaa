// package models defines the data model for the playlist maintenance service
package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/polish/internal/shared"
)

// SortField names the track attribute a playlist is ordered by.
type SortField string

const (
	FieldTitle       SortField = "title"
	FieldArtist      SortField = "artist"
	FieldAlbum       SortField = "album"
	FieldReleaseDate SortField = "release_date"
	FieldDateAdded   SortField = "date_added"
	FieldDuration    SortField = "duration"
)

// SortFields lists every supported [SortField] in display order.
var SortFields = []SortField{FieldTitle, FieldArtist, FieldAlbum, FieldReleaseDate, FieldDateAdded, FieldDuration}

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Method selects the execution strategy of a sort.
type Method string

const (
	// MethodFast rewrites the playlist in batches. Added-at dates are reset.
	MethodFast Method = "fast"
	// MethodPreserve moves only misplaced tracks, one at a time.
	MethodPreserve Method = "preserve"
)

// SortSpec is what a caller asks a sort job to do.
type SortSpec struct {
	Field     SortField `json:"sort_by"`
	Direction Direction `json:"direction"`
	Method    Method    `json:"method"`
}

// DefaultSortSpec is used by scheduled sorts that leave fields blank.
var DefaultSortSpec = SortSpec{Field: FieldDateAdded, Direction: Desc, Method: MethodPreserve}

// WithDefaults fills blank fields from [DefaultSortSpec].
func (s SortSpec) WithDefaults() SortSpec {
	if s.Field == "" {
		s.Field = DefaultSortSpec.Field
	}
	if s.Direction == "" {
		s.Direction = DefaultSortSpec.Direction
	}
	if s.Method == "" {
		s.Method = DefaultSortSpec.Method
	}
	return s
}

// Validate reports unknown fields, directions or methods as [shared.ErrValidation].
func (s SortSpec) Validate() error {
	if !ValidSortField(string(s.Field)) {
		return fmt.Errorf("%w: unsupported sort field %q", shared.ErrValidation, s.Field)
	}
	if s.Direction != Asc && s.Direction != Desc {
		return fmt.Errorf("%w: direction must be asc or desc, got %q", shared.ErrValidation, s.Direction)
	}
	if s.Method != MethodFast && s.Method != MethodPreserve {
		return fmt.Errorf("%w: method must be fast or preserve, got %q", shared.ErrValidation, s.Method)
	}
	return nil
}

// ValidSortField reports whether name is one of [SortFields].
func ValidSortField(name string) bool {
	for _, f := range SortFields {
		if string(f) == name {
			return true
		}
	}
	return false
}

// ParseSortSpec builds a [SortSpec] from loosely formatted input such as CLI flags.
func ParseSortSpec(field, direction, method string) (SortSpec, error) {
	spec := SortSpec{
		Field:     SortField(strings.ToLower(strings.TrimSpace(field))),
		Direction: Direction(strings.ToLower(strings.TrimSpace(direction))),
		Method:    Method(strings.ToLower(strings.TrimSpace(method))),
	}.WithDefaults()
	return spec, spec.Validate()
}
