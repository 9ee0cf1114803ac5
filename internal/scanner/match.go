package scanner

import (
	"context"
	"sort"

	"github.com/nexalabs/nexa/internal/agents"
	"github.com/nexalabs/nexa/internal/database"
)

// match groups classified candidates into units of work whose aggregate
// becomes one item graph: all parts of a movie, all tracks of an album
// medium. The input is finite, so units are emitted when it ends.
func match(ctx context.Context, section *database.LibrarySection,
	in <-chan classified, out chan<- *agents.Unit, progress ProgressSink) error {
	defer close(out)

	groups := make(map[string][]classified)
	var order []string
	for c := range in {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, ok := groups[c.groupKey]; !ok {
			order = append(order, c.groupKey)
		}
		groups[c.groupKey] = append(groups[c.groupKey], c)
	}

	var emitted int64
	total := int64(len(order))
	for _, key := range order {
		members := groups[key]
		sort.Slice(members, func(i, j int) bool { return members[i].Path < members[j].Path })

		first := members[0]
		unit := &agents.Unit{
			LibrarySectionID: section.ID,
			LibraryType:      section.Type,
			Language:         section.Language,
			IntendedType:     first.intendedType,
			ShowTitle:        first.showTitle,
			SeasonNumber:     first.seasonNumber,
			ArtistName:       first.artistName,
			AlbumTitle:       first.albumTitle,
			DiscNumber:       first.discNumber,
		}
		for _, m := range members {
			unit.Files = append(unit.Files, agents.FileRef{
				Path: m.Path, Size: m.Size, MTime: m.MTime, Ext: m.Ext,
			})
		}
		select {
		case out <- unit:
		case <-ctx.Done():
			return ctx.Err()
		}
		emitted++
		progress.Report(StageMatch, emitted, total)
	}
	return nil
}
