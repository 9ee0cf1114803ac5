package agents

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nexalabs/nexa/internal/database"
)

var (
	yearParenRe  = regexp.MustCompile(`^(.*?)\s*[\(\[](\d{4})[\)\]]`)
	seasonEpRe   = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,3})`)
	altSeasonRe  = regexp.MustCompile(`(?i)(\d{1,2})x(\d{1,3})`)
	trackPrefixRe = regexp.MustCompile(`^(\d{1,3})\s*[-._ ]\s*(.+)$`)
)

// LocalFilenameAgent derives hints from the file name and directory layout
// alone. It runs after embedded tags so it only fills gaps.
type LocalFilenameAgent struct{}

func NewLocalFilenameAgent() *LocalFilenameAgent { return &LocalFilenameAgent{} }

func (a *LocalFilenameAgent) Name() string       { return "local-filename" }
func (a *LocalFilenameAgent) Category() Category { return CategoryLocal }
func (a *LocalFilenameAgent) DefaultOrder() int  { return 0 }

func (a *LocalFilenameAgent) SupportedLibraryTypes() []database.LibraryType {
	return allLibraryTypes
}

func (a *LocalFilenameAgent) Extract(ctx context.Context, unit *Unit) (*Hints, error) {
	hints := NewHints()
	if len(unit.Files) == 0 {
		return hints, nil
	}
	source := a.Name()
	name := baseName(unit.Files[0].Path)

	switch unit.IntendedType {
	case database.TypeEpisode:
		if m := seasonEpRe.FindStringSubmatch(name); m != nil {
			season, _ := strconv.Atoi(m[1])
			episode, _ := strconv.Atoi(m[2])
			hints.Set(HintSeasonNumber, season, source)
			hints.Set(HintEpisodeNumber, episode, source)
		} else if m := altSeasonRe.FindStringSubmatch(name); m != nil {
			season, _ := strconv.Atoi(m[1])
			episode, _ := strconv.Atoi(m[2])
			hints.Set(HintSeasonNumber, season, source)
			hints.Set(HintEpisodeNumber, episode, source)
		}
		if unit.ShowTitle != "" {
			hints.Set(HintShowTitle, unit.ShowTitle, source)
		}
		hints.Set(HintTitle, cleanEpisodeTitle(name), source)
	case database.TypeTrack:
		if m := trackPrefixRe.FindStringSubmatch(name); m != nil {
			track, _ := strconv.Atoi(m[1])
			hints.Set(HintTrackNumber, track, source)
			hints.Set(HintTitle, cleanTitle(m[2]), source)
		} else {
			hints.Set(HintTitle, cleanTitle(name), source)
		}
		if unit.AlbumTitle != "" {
			hints.Set(HintAlbum, unit.AlbumTitle, source)
		}
		if unit.ArtistName != "" {
			hints.Set(HintAlbumArtist, unit.ArtistName, source)
		}
	default:
		if m := yearParenRe.FindStringSubmatch(name); m != nil {
			year, _ := strconv.Atoi(m[2])
			hints.Set(HintTitle, cleanTitle(m[1]), source)
			hints.Set(HintYear, year, source)
		} else {
			hints.Set(HintTitle, cleanTitle(name), source)
		}
	}
	return hints, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func cleanTitle(s string) string {
	s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// cleanEpisodeTitle strips the SxxEyy marker and anything before it, keeping
// a trailing episode title when present.
func cleanEpisodeTitle(name string) string {
	if loc := seasonEpRe.FindStringIndex(name); loc != nil {
		rest := strings.Trim(name[loc[1]:], " -._")
		if rest != "" {
			return cleanTitle(rest)
		}
	}
	return cleanTitle(name)
}
