package hubs

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

const defaultHubCount = 20

// ItemRequest asks for one hub's item projection.
type ItemRequest struct {
	Type      Type
	Context   Context
	UserID    uint
	SectionID *uint // LibraryDiscover
	ItemID    *uint // ItemDetail
	Filter    string
	Count     int
}

// Person is one entry of a cast or crew hub.
type Person struct {
	Item database.MetadataItem `json:"item"`
	Role string                `json:"role,omitempty"`
	Type database.CreditType   `json:"credit_type"`
}

// Engine resolves hub definitions against the catalog.
type Engine struct {
	db       *gorm.DB
	items    *catalog.ItemRepository
	sections *catalog.SectionRepository
}

func NewEngine(db *gorm.DB, items *catalog.ItemRepository, sections *catalog.SectionRepository) *Engine {
	return &Engine{db: db, items: items, sections: sections}
}

// GetHubItems returns up to Count items ordered by the hub's ranking rule.
// Home hubs union every library, deduped by item identity.
func (e *Engine) GetHubItems(ctx context.Context, req ItemRequest) ([]database.MetadataItem, error) {
	if req.Count <= 0 {
		req.Count = defaultHubCount
	}

	switch req.Context {
	case ContextHome:
		return e.homeItems(req)
	case ContextLibraryDiscover:
		if req.SectionID == nil {
			return nil, errs.FieldError("librarySectionId", "library discover hubs require a library section")
		}
		return e.sectionItems(req, *req.SectionID)
	case ContextItemDetail:
		if req.ItemID == nil {
			return nil, errs.FieldError("metadataItemId", "item detail hubs require a context item")
		}
		return e.detailItems(req, *req.ItemID)
	default:
		return nil, errs.Ef(errs.InvalidArgument, "unknown hub context %q", req.Context)
	}
}

// homeItems runs the hub per readable section and merges round-robin by rank,
// dropping duplicate item identities.
func (e *Engine) homeItems(req ItemRequest) ([]database.MetadataItem, error) {
	sections, err := e.sections.List()
	if err != nil {
		return nil, err
	}
	// ContinueWatching is ordered by watch recency, which a per-section
	// merge cannot reconstruct, so it runs as one query over all sections.
	if req.Type == ContinueWatching {
		ids := make([]uint, len(sections))
		for i, section := range sections {
			ids[i] = section.ID
		}
		return e.continueWatching(req, ids)
	}

	seen := make(map[string]bool)
	var merged []database.MetadataItem
	for _, section := range sections {
		items, err := e.sectionItems(req, section.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if seen[item.UUID] {
				continue
			}
			seen[item.UUID] = true
			merged = append(merged, item)
		}
	}
	rankItems(req.Type, merged)
	if len(merged) > req.Count {
		merged = merged[:req.Count]
	}
	return merged, nil
}

func (e *Engine) sectionItems(req ItemRequest, sectionID uint) ([]database.MetadataItem, error) {
	section, err := e.sections.GetByID(sectionID)
	if err != nil {
		return nil, err
	}
	rootTypes := catalog.RootItemTypes(section.Type)

	base := e.db.Model(&database.MetadataItem{}).
		Where("library_section_id = ? AND type IN ?", sectionID, rootTypes).
		Limit(req.Count)

	switch req.Type {
	case RecentlyAdded:
		base = base.Order("created_at DESC, id DESC")
	case RecentlyReleased:
		base = base.Where("originally_available_at IS NOT NULL").
			Order("originally_available_at DESC")
	case TopRated:
		base = base.Where("rating IS NOT NULL").Order("rating DESC")
	case ContinueWatching:
		return e.continueWatching(req, []uint{sectionID})
	case ByGenre:
		if req.Filter == "" {
			return nil, errs.FieldError("filter", "genre hubs require a filter value")
		}
		base = base.Where("genres LIKE ?", "%\""+req.Filter+"\"%").
			Order(database.NaturalOrder(e.db, "sort_title", false))
	case ByDirector:
		if req.Filter == "" {
			return nil, errs.FieldError("filter", "director hubs require a filter value")
		}
		base = e.db.Model(&database.MetadataItem{}).
			Joins("JOIN person_credits ON person_credits.item_id = metadata_items.id").
			Joins("JOIN metadata_items people ON people.id = person_credits.person_id").
			Where("metadata_items.library_section_id = ?", sectionID).
			Where("person_credits.type = ? AND people.title = ?", database.CreditDirector, req.Filter).
			Order("metadata_items.originally_available_at DESC").
			Limit(req.Count)
	default:
		return nil, errs.Ef(errs.InvalidArgument, "hub type %q is not an item hub for this context", req.Type)
	}

	var items []database.MetadataItem
	if err := base.Find(&items).Error; err != nil {
		return nil, errs.E(errs.Internal, "hub item query", err)
	}
	return items, nil
}

// continueWatching lists the user's in-progress items across the given
// sections, most recently watched first.
func (e *Engine) continueWatching(req ItemRequest, sectionIDs []uint) ([]database.MetadataItem, error) {
	var items []database.MetadataItem
	err := e.db.Model(&database.MetadataItem{}).
		Joins("JOIN playback_states ON playback_states.metadata_item_id = metadata_items.id").
		Where("metadata_items.library_section_id IN ?", sectionIDs).
		Where("playback_states.user_id = ? AND playback_states.watched = ? AND playback_states.position_ms > 0",
			req.UserID, false).
		Order("playback_states.last_watched_at DESC").
		Limit(req.Count).
		Find(&items).Error
	if err != nil {
		return nil, errs.E(errs.Internal, "hub item query", err)
	}
	return items, nil
}

// detailItems resolves item-context hubs: currently the show siblings hub.
func (e *Engine) detailItems(req ItemRequest, itemID uint) ([]database.MetadataItem, error) {
	if req.Type != MoreFromShow {
		return nil, errs.Ef(errs.InvalidArgument, "hub type %q is not an item hub for this context", req.Type)
	}
	item, err := e.items.GetByID(itemID)
	if err != nil {
		return nil, err
	}
	showID, err := e.resolveShow(item)
	if err != nil {
		return nil, err
	}

	var items []database.MetadataItem
	err = e.db.Model(&database.MetadataItem{}).
		Joins("JOIN metadata_items seasons ON seasons.id = metadata_items.parent_id").
		Where("seasons.parent_id = ? AND metadata_items.type = ? AND metadata_items.id <> ?",
			showID, database.TypeEpisode, itemID).
		Order("seasons.item_index ASC, metadata_items.item_index ASC").
		Limit(req.Count).
		Find(&items).Error
	if err != nil {
		return nil, errs.E(errs.Internal, "show siblings query", err)
	}
	return items, nil
}

// resolveShow climbs from an episode or season to its show.
func (e *Engine) resolveShow(item *database.MetadataItem) (uint, error) {
	current := item
	for current.Type != database.TypeShow {
		if current.ParentID == nil {
			return 0, errs.Ef(errs.FailedPrecondition, "item %q has no show ancestor", item.UUID)
		}
		parent, err := e.items.GetByID(*current.ParentID)
		if err != nil {
			return 0, err
		}
		current = parent
	}
	return current.ID, nil
}

// GetHubPeople returns the cast or crew projection for an item, ordered by
// credit position.
func (e *Engine) GetHubPeople(ctx context.Context, hubType Type, itemID uint, count int) ([]Person, error) {
	if count <= 0 {
		count = defaultHubCount
	}
	var types []database.CreditType
	switch hubType {
	case Cast:
		types = []database.CreditType{database.CreditActor, database.CreditPerformer}
	case Crew:
		types = []database.CreditType{
			database.CreditDirector, database.CreditWriter, database.CreditProducer,
			database.CreditComposer, database.CreditConductor,
		}
	default:
		return nil, errs.Ef(errs.InvalidArgument, "hub type %q is not a people hub", hubType)
	}

	credits, err := e.items.CreditsFor(itemID, types...)
	if err != nil {
		return nil, err
	}
	people := make([]Person, 0, len(credits))
	for _, credit := range credits {
		if len(people) >= count {
			break
		}
		person, err := e.items.GetByID(credit.PersonID)
		if err != nil {
			continue
		}
		people = append(people, Person{Item: *person, Role: credit.Role, Type: credit.Type})
	}
	return people, nil
}

func sortBy(items []database.MetadataItem, less func(a, b database.MetadataItem) bool) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

// rankItems re-sorts a merged multi-library result by the hub's rule.
func rankItems(t Type, items []database.MetadataItem) {
	switch t {
	case RecentlyAdded:
		sortBy(items, func(a, b database.MetadataItem) bool { return a.CreatedAt.After(b.CreatedAt) })
	case RecentlyReleased:
		sortBy(items, func(a, b database.MetadataItem) bool {
			if a.OriginallyAvailableAt == nil || b.OriginallyAvailableAt == nil {
				return b.OriginallyAvailableAt == nil
			}
			return a.OriginallyAvailableAt.After(*b.OriginallyAvailableAt)
		})
	case TopRated:
		sortBy(items, func(a, b database.MetadataItem) bool {
			if a.Rating == nil || b.Rating == nil {
				return b.Rating == nil
			}
			return *a.Rating > *b.Rating
		})
	}
}
