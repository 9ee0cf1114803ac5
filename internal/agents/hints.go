// Package agents defines the metadata agent interface, the canonical hint
// vocabulary, and the built-in sidecar/embedded/local/remote agents.
package agents

import (
	"time"

	"github.com/nexalabs/nexa/internal/database"
)

// Canonical hint keys. Scalar hints merge first-wins in agent order; list
// hints merge as unions.
const (
	HintTitle         = "title"
	HintSortTitle     = "sortTitle"
	HintOriginalTitle = "originalTitle"
	HintSummary       = "summary"
	HintTagline       = "tagline"
	HintContentRating = "contentRating"
	HintYear          = "year"
	HintReleaseDate   = "releaseDate"
	HintRating        = "rating"
	HintDurationMs    = "durationMs"
	HintAlbum         = "album"
	HintAlbumArtist   = "albumArtist"
	HintArtist        = "artist"
	HintTrackNumber   = "trackNumber"
	HintDiscNumber    = "discNumber"
	HintSeasonNumber  = "seasonNumber"
	HintEpisodeNumber = "episodeNumber"
	HintShowTitle     = "showTitle"
	HintWork          = "work"
	HintMovement      = "movement"
	HintMovementIndex = "movementIndex"
	HintComposer      = "composer"
	HintConductor     = "conductor"
)

// Performer is a credited person hint.
type Performer struct {
	Name string
	Type database.CreditType
	Role string
}

// Scalar is one provenance-tracked hint value.
type Scalar struct {
	Value  interface{}
	Source string // agent name that supplied the value
}

// Hints is the merged output of an agent chain.
type Hints struct {
	Scalars     map[string]Scalar
	Genres      []string
	Tags        []string
	ExternalIDs map[string]string // provider → value
	Performers  []Performer
}

// NewHints returns an empty hint set.
func NewHints() *Hints {
	return &Hints{
		Scalars:     make(map[string]Scalar),
		ExternalIDs: make(map[string]string),
	}
}

// Set records a scalar hint unless an earlier agent already supplied it.
func (h *Hints) Set(key string, value interface{}, source string) {
	if value == nil {
		return
	}
	if s, ok := value.(string); ok && s == "" {
		return
	}
	if _, exists := h.Scalars[key]; exists {
		return
	}
	h.Scalars[key] = Scalar{Value: value, Source: source}
}

// String reads a scalar hint as a string.
func (h *Hints) String(key string) (string, bool) {
	s, ok := h.Scalars[key]
	if !ok {
		return "", false
	}
	v, ok := s.Value.(string)
	return v, ok
}

// Int reads a scalar hint as an int.
func (h *Hints) Int(key string) (int, bool) {
	s, ok := h.Scalars[key]
	if !ok {
		return 0, false
	}
	switch v := s.Value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Int64 reads a scalar hint as an int64.
func (h *Hints) Int64(key string) (int64, bool) {
	s, ok := h.Scalars[key]
	if !ok {
		return 0, false
	}
	switch v := s.Value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Float reads a scalar hint as a float64.
func (h *Hints) Float(key string) (float64, bool) {
	s, ok := h.Scalars[key]
	if !ok {
		return 0, false
	}
	switch v := s.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Time reads a scalar hint as a time.
func (h *Hints) Time(key string) (time.Time, bool) {
	s, ok := h.Scalars[key]
	if !ok {
		return time.Time{}, false
	}
	v, ok := s.Value.(time.Time)
	return v, ok
}

// AddGenre appends a genre once.
func (h *Hints) AddGenre(genre string) {
	if genre == "" || contains(h.Genres, genre) {
		return
	}
	h.Genres = append(h.Genres, genre)
}

// AddTag appends a tag once.
func (h *Hints) AddTag(tag string) {
	if tag == "" || contains(h.Tags, tag) {
		return
	}
	h.Tags = append(h.Tags, tag)
}

// AddExternalID records an external reference unless the provider is already
// claimed by an earlier agent.
func (h *Hints) AddExternalID(provider, value string) {
	if provider == "" || value == "" {
		return
	}
	if _, exists := h.ExternalIDs[provider]; exists {
		return
	}
	h.ExternalIDs[provider] = value
}

// AddPerformer appends a performer once per (name, type).
func (h *Hints) AddPerformer(p Performer) {
	if p.Name == "" {
		return
	}
	for _, existing := range h.Performers {
		if existing.Name == p.Name && existing.Type == p.Type {
			return
		}
	}
	h.Performers = append(h.Performers, p)
}

// Merge folds other into h, preserving h's precedence.
func (h *Hints) Merge(other *Hints) {
	if other == nil {
		return
	}
	for key, s := range other.Scalars {
		h.Set(key, s.Value, s.Source)
	}
	for _, g := range other.Genres {
		h.AddGenre(g)
	}
	for _, t := range other.Tags {
		h.AddTag(t)
	}
	for provider, value := range other.ExternalIDs {
		h.AddExternalID(provider, value)
	}
	for _, p := range other.Performers {
		h.AddPerformer(p)
	}
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
