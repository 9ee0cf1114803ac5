package scanner

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/nexalabs/nexa/internal/agents"
	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/settings"
)

// plan is the persistence order produced for one unit.
type plan struct {
	unit *agents.Unit

	// graph is set for self-contained units (movies, books, photos, games).
	graph *catalog.ItemGraph

	episode *episodePlan
	album   *albumPlan
}

// episodePlan places one episode under its show/season hierarchy.
type episodePlan struct {
	showTitle     string
	seasonNumber  int
	episodeNumber int
	episode       catalog.ItemGraph
}

// albumPlan places one medium of tracks under the release-group → release →
// medium hierarchy.
type albumPlan struct {
	artistName string
	albumTitle string
	discNumber int
	year       *int
	genres     []string
	external   map[string]string // album/release-group external ids
	tracks     []catalog.ItemGraph
}

// moderation applies the configured genre canonicalization and tag policy.
type moderation struct {
	genreMap map[string]string
	allowed  map[string]bool
	blocked  map[string]bool
}

func newModeration(genres settings.GenreMappingOptions, tags settings.TagModerationOptions) *moderation {
	m := &moderation{
		genreMap: genres.Mappings,
		allowed:  make(map[string]bool, len(tags.AllowedTags)),
		blocked:  make(map[string]bool, len(tags.BlockedTags)),
	}
	for _, t := range tags.AllowedTags {
		m.allowed[t] = true
	}
	for _, t := range tags.BlockedTags {
		m.blocked[t] = true
	}
	return m
}

// Genres canonicalizes each genre through the mapping table.
func (m *moderation) Genres(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, g := range in {
		if mapped, ok := m.genreMap[g]; ok {
			g = mapped
		}
		if !containsString(out, g) {
			out = append(out, g)
		}
	}
	return out
}

// Tags applies the moderation policy: a non-empty allow list passes only its
// members; otherwise the block list removes matches; otherwise all pass.
func (m *moderation) Tags(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, t := range in {
		if len(m.allowed) > 0 {
			if !m.allowed[t] {
				continue
			}
		} else if m.blocked[t] {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalize maps merged hints onto the typed data model and emits a
// persistence plan per unit.
func normalize(ctx context.Context, mod *moderation,
	in <-chan extracted, out chan<- plan, progress ProgressSink) error {
	defer close(out)

	var processed int64
	for ex := range in {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p := buildPlan(ex, mod)
		select {
		case out <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
		processed++
		progress.Report(StageNormalize, processed, -1)
	}
	return nil
}

func buildPlan(ex extracted, mod *moderation) plan {
	switch ex.unit.IntendedType {
	case database.TypeEpisode:
		return plan{unit: ex.unit, episode: buildEpisodePlan(ex, mod)}
	case database.TypeTrack:
		return plan{unit: ex.unit, album: buildAlbumPlan(ex, mod)}
	default:
		g := buildGenericGraph(ex, mod)
		return plan{unit: ex.unit, graph: &g}
	}
}

func buildGenericGraph(ex extracted, mod *moderation) catalog.ItemGraph {
	unit, hints := ex.unit, ex.unitHints
	item := baseItem(unit, unit.IntendedType, hints, mod)
	return catalog.ItemGraph{
		Item:        item,
		ExternalIDs: hints.ExternalIDs,
		Credits:     creditsOf(hints),
		Parts:       partsOf(unit.Files),
	}
}

func buildEpisodePlan(ex extracted, mod *moderation) *episodePlan {
	unit, hints := ex.unit, ex.unitHints
	item := baseItem(unit, database.TypeEpisode, hints, mod)

	season := unit.SeasonNumber
	if n, ok := hints.Int(agents.HintSeasonNumber); ok {
		season = n
	}
	episodeNumber := 0
	if n, ok := hints.Int(agents.HintEpisodeNumber); ok {
		episodeNumber = n
		item.ItemIndex = &n
	}
	show := unit.ShowTitle
	if s, ok := hints.String(agents.HintShowTitle); ok {
		show = s
	}

	return &episodePlan{
		showTitle:     show,
		seasonNumber:  season,
		episodeNumber: episodeNumber,
		episode: catalog.ItemGraph{
			Item:        item,
			ExternalIDs: hints.ExternalIDs,
			Credits:     creditsOf(hints),
			Parts:       partsOf(unit.Files),
		},
	}
}

// buildAlbumPlan runs the music hint rules: album identity from the unit
// layout and album-artist hints, per-track titles/numbers/extras from the
// per-file hints, classical work/movement fields into extra fields.
func buildAlbumPlan(ex extracted, mod *moderation) *albumPlan {
	unit := ex.unit
	ap := &albumPlan{
		artistName: unit.ArtistName,
		albumTitle: unit.AlbumTitle,
		discNumber: unit.DiscNumber,
		genres:     mod.Genres(ex.unitHints.Genres),
		external:   make(map[string]string),
	}
	if s, ok := ex.unitHints.String(agents.HintAlbumArtist); ok {
		ap.artistName = s
	}
	if s, ok := ex.unitHints.String(agents.HintAlbum); ok {
		ap.albumTitle = s
	}
	if y, ok := ex.unitHints.Int(agents.HintYear); ok {
		ap.year = &y
	}
	for _, provider := range []string{"musicbrainz_album", "musicbrainz_releasegroup", "musicbrainz_artist"} {
		if v, ok := ex.unitHints.ExternalIDs[provider]; ok {
			ap.external[provider] = v
		}
	}

	for i, file := range unit.Files {
		hints := ex.unitHints
		if ex.fileHints != nil {
			hints = ex.fileHints[i]
		}
		track := baseItem(unit, database.TypeTrack, hints, mod)
		if n, ok := hints.Int(agents.HintTrackNumber); ok {
			track.ItemIndex = &n
		}

		extras := make(map[string]interface{})
		if work, ok := hints.String(agents.HintWork); ok {
			extras["work"] = work
		}
		if movement, ok := hints.String(agents.HintMovement); ok {
			extras["movement"] = movement
		}
		if idx, ok := hints.Int(agents.HintMovementIndex); ok {
			extras["movementIndex"] = idx
		}

		external := make(map[string]string)
		if v, ok := hints.ExternalIDs["musicbrainz_track"]; ok {
			external["musicbrainz_track"] = v
		}

		ap.tracks = append(ap.tracks, catalog.ItemGraph{
			Item:        track,
			ExternalIDs: external,
			ExtraFields: extras,
			Credits:     creditsOf(hints),
			Parts:       []catalog.PartSpec{{Path: file.Path, Size: file.Size, MTime: file.MTime}},
		})
	}
	return ap
}

func baseItem(unit *agents.Unit, t database.MetadataType, hints *agents.Hints, mod *moderation) database.MetadataItem {
	item := database.MetadataItem{
		LibrarySectionID: unit.LibrarySectionID,
		Type:             t,
		Language:         unit.Language,
		Genres:           database.StringList(mod.Genres(hints.Genres)),
		Tags:             database.StringList(mod.Tags(hints.Tags)),
	}
	if title, ok := hints.String(agents.HintTitle); ok {
		item.Title = title
	}
	if sortTitle, ok := hints.String(agents.HintSortTitle); ok {
		item.SortTitle = sortTitle
	}
	if original, ok := hints.String(agents.HintOriginalTitle); ok {
		item.OriginalTitle = original
	}
	if summary, ok := hints.String(agents.HintSummary); ok {
		item.Summary = summary
	}
	if tagline, ok := hints.String(agents.HintTagline); ok {
		item.Tagline = tagline
	}
	if rating, ok := hints.String(agents.HintContentRating); ok {
		item.ContentRating = rating
	}
	if year, ok := hints.Int(agents.HintYear); ok {
		item.Year = &year
	}
	if rating, ok := hints.Float(agents.HintRating); ok {
		item.Rating = &rating
	}
	if release, ok := hints.Time(agents.HintReleaseDate); ok {
		item.OriginallyAvailableAt = &release
	}
	if duration, ok := hints.Int64(agents.HintDurationMs); ok {
		item.DurationMs = &duration
	}
	if item.Title == "" && len(unit.Files) > 0 {
		item.Title = fallbackTitle(unit.Files[0].Path)
	}
	return item
}

func creditsOf(hints *agents.Hints) []catalog.CreditSpec {
	out := make([]catalog.CreditSpec, 0, len(hints.Performers))
	for i, p := range hints.Performers {
		out = append(out, catalog.CreditSpec{
			PersonName: p.Name,
			Type:       p.Type,
			Role:       p.Role,
			Position:   i,
		})
	}
	return out
}

func partsOf(files []agents.FileRef) []catalog.PartSpec {
	out := make([]catalog.PartSpec, 0, len(files))
	for _, f := range files {
		out = append(out, catalog.PartSpec{Path: f.Path, Size: f.Size, MTime: f.MTime})
	}
	return out
}

func fallbackTitle(path string) string {
	return baseNameNoExt(path)
}

func baseNameNoExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
