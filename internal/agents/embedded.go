package agents

import (
	"context"
	"os"
	"strings"

	"github.com/dhowden/tag"

	"github.com/nexalabs/nexa/internal/database"
)

// EmbeddedAudioAgent reads tags embedded in audio files (ID3v2, Vorbis
// comments, MP4 atoms).
type EmbeddedAudioAgent struct{}

func NewEmbeddedAudioAgent() *EmbeddedAudioAgent { return &EmbeddedAudioAgent{} }

func (a *EmbeddedAudioAgent) Name() string       { return "embedded-audio" }
func (a *EmbeddedAudioAgent) Category() Category { return CategoryEmbedded }
func (a *EmbeddedAudioAgent) DefaultOrder() int  { return 0 }

func (a *EmbeddedAudioAgent) SupportedLibraryTypes() []database.LibraryType {
	return []database.LibraryType{database.LibraryMusic, database.LibraryAudiobooks, database.LibraryPodcasts}
}

func (a *EmbeddedAudioAgent) Extract(ctx context.Context, unit *Unit) (*Hints, error) {
	hints := NewHints()
	for _, file := range unit.Files {
		if ctx.Err() != nil {
			return hints, ctx.Err()
		}
		a.readFile(hints, file.Path)
	}
	return hints, nil
}

func (a *EmbeddedAudioAgent) readFile(hints *Hints, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return
	}
	source := a.Name()

	hints.Set(HintTitle, strings.TrimSpace(m.Title()), source)
	hints.Set(HintAlbum, strings.TrimSpace(m.Album()), source)
	hints.Set(HintArtist, strings.TrimSpace(m.Artist()), source)
	hints.Set(HintAlbumArtist, strings.TrimSpace(m.AlbumArtist()), source)
	hints.Set(HintComposer, strings.TrimSpace(m.Composer()), source)
	if year := m.Year(); year > 0 {
		hints.Set(HintYear, year, source)
	}
	if track, _ := m.Track(); track > 0 {
		hints.Set(HintTrackNumber, track, source)
	}
	if disc, _ := m.Disc(); disc > 0 {
		hints.Set(HintDiscNumber, disc, source)
	}
	if genre := strings.TrimSpace(m.Genre()); genre != "" {
		hints.AddGenre(genre)
	}
	if artist := strings.TrimSpace(m.Artist()); artist != "" {
		hints.AddPerformer(Performer{Name: artist, Type: database.CreditPerformer})
	}
	if composer := strings.TrimSpace(m.Composer()); composer != "" {
		hints.AddPerformer(Performer{Name: composer, Type: database.CreditComposer})
	}

	raw := m.Raw()
	for tagKey, provider := range map[string]string{
		"musicbrainz_trackid":       "musicbrainz_track",
		"musicbrainz_albumid":       "musicbrainz_album",
		"musicbrainz_artistid":      "musicbrainz_artist",
		"musicbrainz_releasegroupid": "musicbrainz_releasegroup",
	} {
		if v, ok := raw[tagKey]; ok {
			if s, ok := v.(string); ok {
				hints.AddExternalID(provider, s)
			}
		}
	}
}
