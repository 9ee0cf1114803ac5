package scanner

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/logger"
)

// persister applies persistence plans through the catalog repositories. All
// writes for one scan flow through a single persister goroutine, so the
// find-or-create parent caches need no locking.
type persister struct {
	section *database.LibrarySection
	items   *catalog.ItemRepository
	parts   *catalog.PartRepository
	bulk    *catalog.BulkRepository
	enqueue Enqueuer
	stats   *Stats

	parentCache map[string]uint
}

func newPersister(section *database.LibrarySection, items *catalog.ItemRepository,
	parts *catalog.PartRepository, bulk *catalog.BulkRepository, enqueue Enqueuer, stats *Stats) *persister {
	return &persister{
		section:     section,
		items:       items,
		parts:       parts,
		bulk:        bulk,
		enqueue:     enqueue,
		stats:       stats,
		parentCache: make(map[string]uint),
	}
}

// persist drains the plan channel. A failed unit is retried once before it is
// counted against the scan; one bad file never aborts the whole run.
func persist(ctx context.Context, p *persister, in <-chan plan, progress ProgressSink) error {
	var processed int64
	for pl := range in {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := p.apply(&pl)
		if err != nil {
			logger.Warn("persist failed, retrying unit", "error", err, "files", len(pl.unit.Files))
			err = p.apply(&pl)
		}
		if err != nil {
			logger.Error("persist failed", "error", err, "files", len(pl.unit.Files))
			p.stats.Failed++
		}
		processed++
		p.stats.Units++
		progress.Report(StagePersist, processed, -1)
	}
	return nil
}

func (p *persister) apply(pl *plan) error {
	switch {
	case pl.episode != nil:
		return p.applyEpisode(pl.episode)
	case pl.album != nil:
		return p.applyAlbum(pl.album)
	case pl.graph != nil:
		return p.applyGraph(pl.graph, nil)
	default:
		return errs.E(errs.Internal, "persistence plan carries no payload")
	}
}

// applyGraph inserts a new item graph or, when its first part path is already
// on file, refreshes the existing item in place.
func (p *persister) applyGraph(g *catalog.ItemGraph, parentID *uint) error {
	if len(g.Parts) > 0 {
		existing, err := p.parts.GetByPath(g.Parts[0].Path)
		if err != nil {
			return err
		}
		if existing != nil {
			return p.refresh(existing.MetadataItemID, g)
		}
	}

	ids, err := p.bulk.InsertUnder(parentID, []catalog.ItemGraph{*g})
	if err != nil {
		return err
	}
	p.stats.Inserted++
	p.enqueueFollowups(ids[0], g.Item.Type)
	return nil
}

// refresh re-applies agent metadata to an item whose file changed on disk.
// Field locks are honored by the repository.
func (p *persister) refresh(itemID uint, g *catalog.ItemGraph) error {
	patch := agentPatch(&g.Item)
	if _, err := p.items.UpdateFromAgent(itemID, patch); err != nil {
		return err
	}
	for _, part := range g.Parts {
		if _, err := p.parts.Upsert(itemID, part.Path, part.Size, part.MTime); err != nil {
			return err
		}
	}
	p.stats.Updated++
	return nil
}

func (p *persister) applyEpisode(ep *episodePlan) error {
	showID, err := p.findOrCreateParent(database.TypeShow, ep.showTitle, nil, nil)
	if err != nil {
		return err
	}
	seasonTitle := "Season " + strconv.Itoa(ep.seasonNumber)
	if ep.seasonNumber == 0 {
		seasonTitle = "Specials"
	}
	seasonID, err := p.findOrCreateParent(database.TypeSeason, seasonTitle, &showID, &ep.seasonNumber)
	if err != nil {
		return err
	}
	return p.applyGraph(&ep.episode, &seasonID)
}

// applyAlbum maintains the release-group → release → medium hierarchy and
// hangs this plan's tracks off the medium for its disc number.
func (p *persister) applyAlbum(ap *albumPlan) error {
	groupTitle := ap.albumTitle
	groupKey := ap.artistName + "\x00" + ap.albumTitle
	groupID, created, err := p.findOrCreateNode(database.TypeAlbumReleaseGroup, groupKey, groupTitle, nil, nil)
	if err != nil {
		return err
	}
	if created {
		p.decorateAlbumGroup(groupID, ap)
	}

	releaseID, _, err := p.findOrCreateNode(database.TypeAlbumRelease, groupKey+"\x00release", groupTitle, &groupID, nil)
	if err != nil {
		return err
	}
	mediumTitle := "Disc " + strconv.Itoa(ap.discNumber)
	mediumID, _, err := p.findOrCreateNode(database.TypeAlbumMedium,
		groupKey+"\x00disc"+strconv.Itoa(ap.discNumber), mediumTitle, &releaseID, &ap.discNumber)
	if err != nil {
		return err
	}

	for i := range ap.tracks {
		if err := p.applyGraph(&ap.tracks[i], &mediumID); err != nil {
			return err
		}
	}
	return nil
}

// decorateAlbumGroup fills album-level metadata onto a freshly created
// release group. Failures here degrade the record, not the scan.
func (p *persister) decorateAlbumGroup(groupID uint, ap *albumPlan) {
	patch := catalog.ItemPatch{}
	if ap.year != nil {
		patch.Year = ap.year
	}
	if len(ap.genres) > 0 {
		genres := ap.genres
		patch.Genres = &genres
	}
	if _, err := p.items.UpdateFromAgent(groupID, patch); err != nil {
		logger.Warn("album group metadata update failed", "error", err, "item", groupID)
	}
	for provider, value := range ap.external {
		row := database.ExternalID{MetadataItemID: groupID, Provider: provider, Value: value}
		if err := p.items.DB().Create(&row).Error; err != nil {
			logger.Warn("album external id insert failed", "error", err, "provider", provider)
		}
	}
}

func (p *persister) findOrCreateParent(t database.MetadataType, title string, parentID *uint, index *int) (uint, error) {
	key := string(t) + "\x00" + title
	if parentID != nil {
		key += "\x00" + strconv.FormatUint(uint64(*parentID), 10)
	}
	id, _, err := p.findOrCreateNode(t, key, title, parentID, index)
	return id, err
}

// findOrCreateNode resolves a hierarchy node by cache, then by query, then by
// creating it. The key is scan-local and only feeds the cache.
func (p *persister) findOrCreateNode(t database.MetadataType, key, title string,
	parentID *uint, index *int) (uint, bool, error) {
	if id, ok := p.parentCache[key]; ok {
		return id, false, nil
	}

	var existing database.MetadataItem
	q := p.items.DB().Where("library_section_id = ? AND type = ? AND title = ?", p.section.ID, t, title)
	if parentID != nil {
		q = q.Where("parent_id = ?", *parentID)
	} else {
		q = q.Where("parent_id IS NULL")
	}
	err := q.First(&existing).Error
	if err == nil {
		p.parentCache[key] = existing.ID
		return existing.ID, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, errs.E(errs.Internal, fmt.Sprintf("resolving %s %q", t, title), err)
	}

	item := database.MetadataItem{
		LibrarySectionID: p.section.ID,
		Type:             t,
		Title:            title,
		Language:         p.section.Language,
		ParentID:         parentID,
		ItemIndex:        index,
	}
	if err := p.items.Create(&item); err != nil {
		return 0, false, err
	}
	p.parentCache[key] = item.ID
	return item.ID, true, nil
}

// enqueueFollowups schedules artwork and trickplay generation for a newly
// inserted item.
func (p *persister) enqueueFollowups(itemID uint, t database.MetadataType) {
	if p.enqueue == nil {
		return
	}
	jobs := []database.JobType{database.JobImageGeneration}
	if t == database.TypeMovie || t == database.TypeEpisode {
		jobs = append(jobs, database.JobTrickplayGeneration)
	}
	for _, jt := range jobs {
		if _, err := p.enqueue.Enqueue(jt, &p.section.ID, &itemID); err != nil {
			logger.Warn("followup enqueue failed", "error", err, "job", jt, "item", itemID)
		}
	}
}

// agentPatch projects the fields an agent is allowed to refresh on an
// existing item.
func agentPatch(item *database.MetadataItem) catalog.ItemPatch {
	patch := catalog.ItemPatch{}
	if item.Title != "" {
		title := item.Title
		patch.Title = &title
	}
	if item.OriginalTitle != "" {
		v := item.OriginalTitle
		patch.OriginalTitle = &v
	}
	if item.Summary != "" {
		v := item.Summary
		patch.Summary = &v
	}
	if item.Tagline != "" {
		v := item.Tagline
		patch.Tagline = &v
	}
	if item.ContentRating != "" {
		v := item.ContentRating
		patch.ContentRating = &v
	}
	if item.Year != nil {
		patch.Year = item.Year
	}
	if item.OriginallyAvailableAt != nil {
		patch.OriginallyAvailableAt = item.OriginallyAvailableAt
	}
	if item.Rating != nil {
		patch.Rating = item.Rating
	}
	if len(item.Genres) > 0 {
		genres := []string(item.Genres)
		patch.Genres = &genres
	}
	if len(item.Tags) > 0 {
		tags := []string(item.Tags)
		patch.Tags = &tags
	}
	return patch
}
