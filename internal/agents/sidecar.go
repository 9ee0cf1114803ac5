package agents

import (
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexalabs/nexa/internal/database"
)

// nfoDocument is the Kodi/Jellyfin-compatible sidecar XML shape. One struct
// covers movie/tvshow/episodedetails roots; unused elements simply stay zero.
type nfoDocument struct {
	Title         string      `xml:"title"`
	OriginalTitle string      `xml:"originaltitle"`
	SortTitle     string      `xml:"sorttitle"`
	Plot          string      `xml:"plot"`
	Tagline       string      `xml:"tagline"`
	MPAA          string      `xml:"mpaa"`
	Year          int         `xml:"year"`
	Premiered     string      `xml:"premiered"`
	Rating        float64     `xml:"rating"`
	Genres        []string    `xml:"genre"`
	Tags          []string    `xml:"tag"`
	Directors     []string    `xml:"director"`
	Credits       []string    `xml:"credits"`
	Actors        []nfoActor  `xml:"actor"`
	UniqueIDs     []nfoUnique `xml:"uniqueid"`
	ShowTitle     string      `xml:"showtitle"`
	Season        int         `xml:"season"`
	Episode       int         `xml:"episode"`
}

type nfoActor struct {
	Name string `xml:"name"`
	Role string `xml:"role"`
}

type nfoUnique struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// SidecarNFOAgent reads Kodi-style .nfo files next to media files.
type SidecarNFOAgent struct{}

func NewSidecarNFOAgent() *SidecarNFOAgent { return &SidecarNFOAgent{} }

func (a *SidecarNFOAgent) Name() string       { return "sidecar-nfo" }
func (a *SidecarNFOAgent) Category() Category { return CategorySidecar }
func (a *SidecarNFOAgent) DefaultOrder() int  { return 0 }

func (a *SidecarNFOAgent) SupportedLibraryTypes() []database.LibraryType {
	return []database.LibraryType{
		database.LibraryMovies, database.LibraryTVShows, database.LibraryMusicVideos,
		database.LibraryHomeVideos, database.LibraryAudiobooks,
	}
}

func (a *SidecarNFOAgent) Extract(ctx context.Context, unit *Unit) (*Hints, error) {
	hints := NewHints()
	for _, file := range unit.Files {
		doc, err := readSidecar(file.Path)
		if err != nil || doc == nil {
			continue
		}
		a.apply(hints, doc)
	}
	return hints, nil
}

// readSidecar locates the sidecar for a media file: "<basename>.nfo" first,
// then "movie.nfo" in the same directory.
func readSidecar(mediaPath string) (*nfoDocument, error) {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	candidates := []string{base + ".nfo", filepath.Join(filepath.Dir(mediaPath), "movie.nfo")}
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		var doc nfoDocument
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}
	return nil, nil
}

func (a *SidecarNFOAgent) apply(hints *Hints, doc *nfoDocument) {
	source := a.Name()
	hints.Set(HintTitle, doc.Title, source)
	hints.Set(HintOriginalTitle, doc.OriginalTitle, source)
	hints.Set(HintSortTitle, doc.SortTitle, source)
	hints.Set(HintSummary, doc.Plot, source)
	hints.Set(HintTagline, doc.Tagline, source)
	hints.Set(HintContentRating, doc.MPAA, source)
	hints.Set(HintShowTitle, doc.ShowTitle, source)
	if doc.Year > 0 {
		hints.Set(HintYear, doc.Year, source)
	}
	if doc.Rating > 0 {
		hints.Set(HintRating, doc.Rating, source)
	}
	if doc.Season > 0 {
		hints.Set(HintSeasonNumber, doc.Season, source)
	}
	if doc.Episode > 0 {
		hints.Set(HintEpisodeNumber, doc.Episode, source)
	}
	if doc.Premiered != "" {
		if t, err := time.Parse("2006-01-02", doc.Premiered); err == nil {
			hints.Set(HintReleaseDate, t, source)
		}
	}
	for _, genre := range doc.Genres {
		hints.AddGenre(genre)
	}
	for _, tag := range doc.Tags {
		hints.AddTag(tag)
	}
	for _, id := range doc.UniqueIDs {
		hints.AddExternalID(id.Type, strings.TrimSpace(id.Value))
	}
	for _, name := range doc.Directors {
		hints.AddPerformer(Performer{Name: name, Type: database.CreditDirector})
	}
	for _, name := range doc.Credits {
		hints.AddPerformer(Performer{Name: name, Type: database.CreditWriter})
	}
	for _, actor := range doc.Actors {
		hints.AddPerformer(Performer{Name: actor.Name, Type: database.CreditActor, Role: actor.Role})
	}
}
