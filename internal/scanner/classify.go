package scanner

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nexalabs/nexa/internal/database"
)

var (
	seasonDirRe = regexp.MustCompile(`(?i)^season[ ._]*(\d{1,3})$`)
	discDirRe   = regexp.MustCompile(`(?i)^(?:cd|disc|disk)[ ._]*(\d{1,2})$`)
	partMarkRe  = regexp.MustCompile(`(?i)[ ._-](?:cd|part|pt)[ ._]*\d{1,2}\s*$`)
)

// classify chooses each candidate's intended metadata type from the library
// type, path layout, and extension, and attaches the layout context the
// match stage groups on.
func classify(ctx context.Context, libType database.LibraryType, roots []string,
	in <-chan Candidate, out chan<- classified, progress ProgressSink) error {
	defer close(out)

	var processed int64
	for candidate := range in {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		processed++
		c, ok := classifyOne(libType, roots, candidate)
		if ok {
			select {
			case out <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		progress.Report(StageClassify, processed, -1)
	}
	return nil
}

func classifyOne(libType database.LibraryType, roots []string, candidate Candidate) (classified, bool) {
	c := classified{Candidate: candidate}
	family := familyOf(candidate.Ext)
	rel := relToRoot(roots, candidate.Path)
	segs := strings.Split(rel, string(filepath.Separator))

	switch libType {
	case database.LibraryMovies, database.LibraryMusicVideos, database.LibraryHomeVideos:
		if family != familyVideo {
			return c, false
		}
		c.intendedType = database.TypeMovie
		c.groupKey = movieGroupKey(candidate.Path)
	case database.LibraryTVShows, database.LibraryPodcasts:
		if family != familyVideo && !(libType == database.LibraryPodcasts && family == familyAudio) {
			return c, false
		}
		c.intendedType = database.TypeEpisode
		// Layout: Show Name/Season 02/S02E03.mkv, with the season directory
		// optional.
		if len(segs) >= 2 {
			c.showTitle = segs[0]
			if m := seasonDirRe.FindStringSubmatch(segs[len(segs)-2]); m != nil && len(segs) >= 3 {
				c.seasonNumber, _ = strconv.Atoi(m[1])
			} else {
				c.seasonNumber = 1
			}
		}
		c.groupKey = candidate.Path
	case database.LibraryMusic, database.LibraryAudiobooks:
		if family != familyAudio {
			return c, false
		}
		c.intendedType = database.TypeTrack
		// Layout: Artist/Album/01 Track.flac, optionally with a disc dir.
		dir := filepath.Dir(candidate.Path)
		leaf := filepath.Base(dir)
		if m := discDirRe.FindStringSubmatch(leaf); m != nil {
			c.discNumber, _ = strconv.Atoi(m[1])
			dir = filepath.Dir(dir)
			leaf = filepath.Base(dir)
		} else {
			c.discNumber = 1
		}
		c.albumTitle = leaf
		c.artistName = filepath.Base(filepath.Dir(dir))
		c.groupKey = dir + "#" + strconv.Itoa(c.discNumber)
	case database.LibraryBooks, database.LibraryComics, database.LibraryManga, database.LibraryMagazines:
		if family != familyBook && family != familyComic {
			return c, false
		}
		c.intendedType = database.TypeLiteraryWork
		c.groupKey = candidate.Path
	case database.LibraryPhotos, database.LibraryPictures:
		if family != familyImage {
			return c, false
		}
		c.intendedType = database.TypePhoto
		if libType == database.LibraryPictures {
			c.intendedType = database.TypePicture
		}
		c.groupKey = candidate.Path
	case database.LibraryGames:
		if family != familyGame {
			return c, false
		}
		c.intendedType = database.TypeGame
		c.groupKey = candidate.Path
	default:
		return c, false
	}
	return c, true
}

// movieGroupKey collapses multi-part files ("Movie - CD1.avi", "Movie
// pt2.mkv") onto one unit key.
func movieGroupKey(path string) string {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = partMarkRe.ReplaceAllString(base, "")
	return filepath.Join(dir, base)
}

func relToRoot(roots []string, path string) string {
	for _, root := range roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(path)
}
