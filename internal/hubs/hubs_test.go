package hubs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

type hubFixture struct {
	db       *gorm.DB
	engine   *Engine
	items    *catalog.ItemRepository
	sections *catalog.SectionRepository
	section  *database.LibrarySection
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	sections := catalog.NewSectionRepository(db)
	section, err := sections.Create("Movies", database.LibraryMovies, "en", []string{"/media/movies"})
	require.NoError(t, err)
	items := catalog.NewItemRepository(db)
	return &hubFixture{
		db:       db,
		engine:   NewEngine(db, items, sections),
		items:    items,
		sections: sections,
		section:  section,
	}
}

func (fx *hubFixture) seedMovie(t *testing.T, title string, rating float64, released time.Time) *database.MetadataItem {
	t.Helper()
	item := &database.MetadataItem{
		LibrarySectionID:      fx.section.ID,
		Type:                  database.TypeMovie,
		Title:                 title,
		Rating:                &rating,
		OriginallyAvailableAt: &released,
	}
	require.NoError(t, fx.items.Create(item))
	return item
}

func TestTopRatedHubOrdersByRating(t *testing.T) {
	fx := newHubFixture(t)
	now := time.Now()
	fx.seedMovie(t, "Middling", 6.1, now)
	fx.seedMovie(t, "Great", 9.2, now)
	fx.seedMovie(t, "Good", 7.8, now)

	items, err := fx.engine.GetHubItems(context.Background(), ItemRequest{
		Type: TopRated, Context: ContextLibraryDiscover, SectionID: &fx.section.ID, Count: 2,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Great", items[0].Title)
	assert.Equal(t, "Good", items[1].Title)
}

func TestRecentlyReleasedHubSkipsUndated(t *testing.T) {
	fx := newHubFixture(t)
	fx.seedMovie(t, "Old", 5, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC))
	fx.seedMovie(t, "New", 5, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	undated := &database.MetadataItem{
		LibrarySectionID: fx.section.ID, Type: database.TypeMovie, Title: "Undated",
	}
	require.NoError(t, fx.items.Create(undated))

	items, err := fx.engine.GetHubItems(context.Background(), ItemRequest{
		Type: RecentlyReleased, Context: ContextLibraryDiscover, SectionID: &fx.section.ID,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "New", items[0].Title)
	assert.Equal(t, "Old", items[1].Title)
}

func TestContinueWatchingHubIsScopedToUser(t *testing.T) {
	fx := newHubFixture(t)
	now := time.Now()
	a := fx.seedMovie(t, "Started By Alice", 7, now)
	b := fx.seedMovie(t, "Started By Bob", 7, now)
	finished := fx.seedMovie(t, "Finished", 7, now)

	states := []database.PlaybackState{
		{UserID: 1, MetadataItemID: a.ID, PositionMs: 600000, DurationMs: 7200000, LastWatchedAt: now},
		{UserID: 2, MetadataItemID: b.ID, PositionMs: 300000, DurationMs: 7200000, LastWatchedAt: now},
		{UserID: 1, MetadataItemID: finished.ID, PositionMs: 7200000, DurationMs: 7200000, Watched: true, LastWatchedAt: now},
	}
	for i := range states {
		require.NoError(t, fx.db.Create(&states[i]).Error)
	}

	items, err := fx.engine.GetHubItems(context.Background(), ItemRequest{
		Type: ContinueWatching, Context: ContextLibraryDiscover, SectionID: &fx.section.ID, UserID: 1,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Started By Alice", items[0].Title)
}

func TestHomeContinueWatchingOrdersByRecencyAcrossSections(t *testing.T) {
	fx := newHubFixture(t)
	other, err := fx.sections.Create("TV", database.LibraryTVShows, "en", []string{"/media/tv"})
	require.NoError(t, err)

	now := time.Now()
	older := fx.seedMovie(t, "Watched Yesterday", 7, now)
	show := &database.MetadataItem{
		LibrarySectionID: other.ID, Type: database.TypeShow, Title: "Watched Just Now",
	}
	require.NoError(t, fx.items.Create(show))

	states := []database.PlaybackState{
		{UserID: 1, MetadataItemID: older.ID, PositionMs: 600000, DurationMs: 7200000, LastWatchedAt: now.Add(-24 * time.Hour)},
		{UserID: 1, MetadataItemID: show.ID, PositionMs: 60000, DurationMs: 2700000, LastWatchedAt: now},
	}
	for i := range states {
		require.NoError(t, fx.db.Create(&states[i]).Error)
	}

	items, err := fx.engine.GetHubItems(context.Background(), ItemRequest{
		Type: ContinueWatching, Context: ContextHome, UserID: 1,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Watched Just Now", items[0].Title)
	assert.Equal(t, "Watched Yesterday", items[1].Title)
}

func TestHomeHubDeduplicatesAcrossSections(t *testing.T) {
	fx := newHubFixture(t)
	now := time.Now()
	fx.seedMovie(t, "Solo", 8, now)

	items, err := fx.engine.GetHubItems(context.Background(), ItemRequest{
		Type: RecentlyAdded, Context: ContextHome, UserID: 1,
	})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestGetHubPeopleSplitsCastAndCrew(t *testing.T) {
	fx := newHubFixture(t)
	movie := fx.seedMovie(t, "Heat", 8.3, time.Now())

	bulk := catalog.NewBulkRepository(fx.db)
	_, err := bulk.Insert([]catalog.ItemGraph{{
		Item: database.MetadataItem{
			LibrarySectionID: fx.section.ID, Type: database.TypeMovie, Title: "Ronin",
		},
		Credits: []catalog.CreditSpec{
			{PersonName: "Robert De Niro", Type: database.CreditActor, Role: "Sam", Position: 0},
			{PersonName: "John Frankenheimer", Type: database.CreditDirector, Position: 1},
		},
	}})
	require.NoError(t, err)

	var ronin database.MetadataItem
	require.NoError(t, fx.db.Where("title = ?", "Ronin").First(&ronin).Error)

	cast, err := fx.engine.GetHubPeople(context.Background(), Cast, ronin.ID, 10)
	require.NoError(t, err)
	require.Len(t, cast, 1)
	assert.Equal(t, "Robert De Niro", cast[0].Item.Title)
	assert.Equal(t, "Sam", cast[0].Role)

	crew, err := fx.engine.GetHubPeople(context.Background(), Crew, ronin.ID, 10)
	require.NoError(t, err)
	require.Len(t, crew, 1)
	assert.Equal(t, "John Frankenheimer", crew[0].Item.Title)

	_ = movie
}

func TestScopeValidation(t *testing.T) {
	section := uint(1)
	mt := database.TypeMovie

	tests := []struct {
		name    string
		scope   Scope
		kind    errs.Kind
		message string
	}{
		{"home with library", Scope{Context: ContextHome, LibrarySectionID: &section},
			errs.InvalidArgument, "Home hub configuration cannot be scoped to library"},
		{"home with type", Scope{Context: ContextHome, MetadataType: &mt}, errs.InvalidArgument, ""},
		{"discover without library", Scope{Context: ContextLibraryDiscover}, errs.FailedPrecondition, ""},
		{"discover with type", Scope{Context: ContextLibraryDiscover, LibrarySectionID: &section, MetadataType: &mt},
			errs.FailedPrecondition, ""},
		{"detail without type", Scope{Context: ContextItemDetail}, errs.FailedPrecondition, ""},
		{"detail with library", Scope{Context: ContextItemDetail, MetadataType: &mt, LibrarySectionID: &section},
			errs.FailedPrecondition, ""},
		{"unknown context", Scope{Context: "Sidebar"}, errs.InvalidArgument, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}

	assert.NoError(t, Scope{Context: ContextHome}.Validate())
	assert.NoError(t, Scope{Context: ContextLibraryDiscover, LibrarySectionID: &section}.Validate())
	assert.NoError(t, Scope{Context: ContextItemDetail, MetadataType: &mt}.Validate())
}

func TestConfigurationRoundTrip(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	store := NewConfigStore(db)

	cfg := Configuration{
		Scope:    Scope{Context: ContextHome},
		Enabled:  []Type{TopRated, RecentlyAdded},
		Disabled: []Type{ContinueWatching},
	}
	require.NoError(t, store.Set(cfg))

	got, err := store.Get(Scope{Context: ContextHome})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cfg.Enabled, got.Enabled)
	assert.Equal(t, cfg.Disabled, got.Disabled)

	// Overwrite for the same scope updates in place.
	cfg.Enabled = []Type{RecentlyAdded}
	require.NoError(t, store.Set(cfg))
	got, err = store.Get(Scope{Context: ContextHome})
	require.NoError(t, err)
	assert.Equal(t, []Type{RecentlyAdded}, got.Enabled)

	// Unstored scope yields nil configuration.
	section := uint(1)
	missing, err := store.Get(Scope{Context: ContextLibraryDiscover, LibrarySectionID: &section})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestApplyOrdersAndDefaultsUnknownTypesEnabled(t *testing.T) {
	defs := HomeDefinitions() // ContinueWatching, RecentlyAdded, RecentlyReleased, TopRated

	cfg := &Configuration{
		Scope:    Scope{Context: ContextHome},
		Enabled:  []Type{TopRated, RecentlyAdded},
		Disabled: []Type{ContinueWatching},
	}
	out := Apply(defs, cfg)
	require.Len(t, out, 3)
	assert.Equal(t, TopRated, out[0].Type)
	assert.Equal(t, RecentlyAdded, out[1].Type)
	// RecentlyReleased was unknown to the stored config: default enabled,
	// appended after the explicit ordering.
	assert.Equal(t, RecentlyReleased, out[2].Type)

	// No configuration leaves the defaults untouched.
	assert.Equal(t, defs, Apply(defs, nil))
}

func TestSetRejectsConflictingLists(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	store := NewConfigStore(db)

	err = store.Set(Configuration{
		Scope:    Scope{Context: ContextHome},
		Enabled:  []Type{TopRated},
		Disabled: []Type{TopRated},
	})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}
