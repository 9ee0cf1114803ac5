package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/agents"
	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/config"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/settings"
)

type recordingEnqueuer struct {
	jobs []database.JobType
}

func (r *recordingEnqueuer) Enqueue(jobType database.JobType, sectionID, itemID *uint) (string, error) {
	r.jobs = append(r.jobs, jobType)
	return "job-" + string(jobType), nil
}

type scanFixture struct {
	db       *gorm.DB
	scanner  *Scanner
	section  *database.LibrarySection
	items    *catalog.ItemRepository
	parts    *catalog.PartRepository
	store    *settings.Store
	enqueued *recordingEnqueuer
}

func newScanFixture(t *testing.T, libType database.LibraryType, root string) *scanFixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)

	sections := catalog.NewSectionRepository(db)
	section, err := sections.Create("Test Library", libType, "en", []string{root})
	require.NoError(t, err)

	items := catalog.NewItemRepository(db)
	parts := catalog.NewPartRepository(db)
	store := settings.NewStore(db)
	enq := &recordingEnqueuer{}

	registry := agents.NewRegistry(agents.NewSidecarNFOAgent(), agents.NewLocalFilenameAgent())
	cfg := config.ScannerConfig{ExtractWorkers: 2, ChannelBuffer: 16}
	sc := New(cfg, sections, items, parts, catalog.NewBulkRepository(db), registry, store, enq, nil)

	return &scanFixture{db: db, scanner: sc, section: section, items: items, parts: parts, store: store, enqueued: enq}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanCreatesMovieFromFilename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Inception (2010).mkv"), "x")
	fx := newScanFixture(t, database.LibraryMovies, root)

	stats, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Inserted)
	assert.Equal(t, int64(0), stats.Failed)

	results, _, err := fx.items.Query(catalog.ItemQuery{
		SectionID: &fx.section.ID, Types: []database.MetadataType{database.TypeMovie},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Inception", results[0].Title)
	require.NotNil(t, results[0].Year)
	assert.Equal(t, 2010, *results[0].Year)

	mediaParts, err := fx.parts.ForItem(results[0].ID)
	require.NoError(t, err)
	require.Len(t, mediaParts, 1)

	// A new video item schedules artwork and trickplay generation.
	assert.Contains(t, fx.enqueued.jobs, database.JobImageGeneration)
	assert.Contains(t, fx.enqueued.jobs, database.JobTrickplayGeneration)
}

func TestScanIsIdempotentForUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Heat (1995).mkv"), "x")
	writeFile(t, filepath.Join(root, "Ronin (1998).mkv"), "x")
	fx := newScanFixture(t, database.LibraryMovies, root)

	first, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Inserted)

	second, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Inserted)
	assert.Equal(t, int64(0), second.Updated)
	assert.Equal(t, int64(2), second.Skipped)
}

func TestScanRefreshesChangedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Alien (1979).mkv")
	writeFile(t, path, "x")
	fx := newScanFixture(t, database.LibraryMovies, root)

	_, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)

	newTime := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, newTime, newTime))

	stats, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Inserted)
	assert.Equal(t, int64(1), stats.Updated)
}

func TestScanAppliesGenreMapAndTagPolicy(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Arrival (2016).mkv"), "x")
	writeFile(t, filepath.Join(root, "Arrival (2016).nfo"), `<movie>
  <title>Arrival</title>
  <year>2016</year>
  <genre>Sci-Fi</genre>
  <genre>Drama</genre>
  <tag>spoiler</tag>
  <tag>favorite</tag>
</movie>`)
	fx := newScanFixture(t, database.LibraryMovies, root)

	require.NoError(t, fx.store.SetGenreMapping(settings.GenreMappingOptions{
		Mappings: map[string]string{"Sci-Fi": "Science Fiction"},
	}))
	require.NoError(t, fx.store.SetTagModeration(settings.TagModerationOptions{
		BlockedTags: []string{"spoiler"},
	}))

	_, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)

	results, _, err := fx.items.Query(catalog.ItemQuery{
		SectionID: &fx.section.ID, Types: []database.MetadataType{database.TypeMovie},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, database.StringList{"Science Fiction", "Drama"}, results[0].Genres)
	assert.Equal(t, database.StringList{"favorite"}, results[0].Tags)
}

func TestScanReapsVanishedFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Gone (2021).mkv")
	writeFile(t, path, "x")
	fx := newScanFixture(t, database.LibraryMovies, root)

	_, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)

	results, _, err := fx.items.Query(catalog.ItemQuery{SectionID: &fx.section.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)
	itemID := results[0].ID

	require.NoError(t, os.Remove(path))

	stats, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Removed)

	_, err = fx.items.GetByID(itemID)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestScanBuildsShowHierarchy(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Breaking Bad", "Season 01", "Breaking Bad S01E01 - Pilot.mkv"), "x")
	writeFile(t, filepath.Join(root, "Breaking Bad", "Season 01", "Breaking Bad S01E02 - Cat's in the Bag.mkv"), "x")
	fx := newScanFixture(t, database.LibraryTVShows, root)

	stats, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Inserted)

	shows, _, err := fx.items.Query(catalog.ItemQuery{
		SectionID: &fx.section.ID, Types: []database.MetadataType{database.TypeShow},
	})
	require.NoError(t, err)
	require.Len(t, shows, 1)
	assert.Equal(t, "Breaking Bad", shows[0].Title)

	seasons, err := fx.items.Children(shows[0].ID)
	require.NoError(t, err)
	require.Len(t, seasons, 1)
	assert.Equal(t, database.TypeSeason, seasons[0].Type)
	require.NotNil(t, seasons[0].ItemIndex)
	assert.Equal(t, 1, *seasons[0].ItemIndex)

	episodes, err := fx.items.Children(seasons[0].ID)
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	for _, ep := range episodes {
		assert.Equal(t, database.TypeEpisode, ep.Type)
		require.NotNil(t, ep.ItemIndex)
	}
}

func TestScanBuildsAlbumHierarchy(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Miles Davis", "Kind of Blue", "01 - So What.mp3"), "x")
	writeFile(t, filepath.Join(root, "Miles Davis", "Kind of Blue", "02 - Freddie Freeloader.mp3"), "x")
	fx := newScanFixture(t, database.LibraryMusic, root)

	_, err := fx.scanner.Scan(context.Background(), fx.section.ID, false, nil)
	require.NoError(t, err)

	groups, _, err := fx.items.Query(catalog.ItemQuery{
		SectionID: &fx.section.ID, Types: []database.MetadataType{database.TypeAlbumReleaseGroup},
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Kind of Blue", groups[0].Title)

	releases, err := fx.items.Children(groups[0].ID)
	require.NoError(t, err)
	require.Len(t, releases, 1)

	media, err := fx.items.Children(releases[0].ID)
	require.NoError(t, err)
	require.Len(t, media, 1)

	tracks, err := fx.items.Children(media[0].ID)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	byIndex := map[int]string{}
	for _, track := range tracks {
		require.NotNil(t, track.ItemIndex)
		byIndex[*track.ItemIndex] = track.Title
	}
	assert.Equal(t, "So What", byIndex[1])
	assert.Equal(t, "Freddie Freeloader", byIndex[2])
}

func TestModerationRules(t *testing.T) {
	mod := newModeration(
		settings.GenreMappingOptions{Mappings: map[string]string{"Sci-Fi": "Science Fiction"}},
		settings.TagModerationOptions{BlockedTags: []string{"spoiler"}},
	)
	assert.Equal(t, []string{"Science Fiction", "Drama"}, mod.Genres([]string{"Sci-Fi", "Drama", "Science Fiction"}))
	assert.Equal(t, []string{"favorite"}, mod.Tags([]string{"spoiler", "favorite"}))

	allowOnly := newModeration(settings.GenreMappingOptions{}, settings.TagModerationOptions{
		AllowedTags: []string{"favorite"},
		BlockedTags: []string{"favorite"}, // allow list wins when both are set
	})
	assert.Equal(t, []string{"favorite"}, allowOnly.Tags([]string{"favorite", "other"}))
}

type slowAgent struct {
	delay time.Duration
}

func (a *slowAgent) Name() string              { return "slow" }
func (a *slowAgent) Category() agents.Category { return agents.CategoryLocal }
func (a *slowAgent) DefaultOrder() int         { return 0 }
func (a *slowAgent) SupportedLibraryTypes() []database.LibraryType {
	return []database.LibraryType{database.LibraryMovies}
}

func (a *slowAgent) Extract(ctx context.Context, unit *agents.Unit) (*agents.Hints, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
	}
	return agents.NewHints(), nil
}

func TestExtractReturnsWhenCancelledWithUnreadOutput(t *testing.T) {
	registry := agents.NewRegistry(&slowAgent{delay: 50 * time.Millisecond})

	in := make(chan *agents.Unit, 32)
	for i := 0; i < 32; i++ {
		in <- &agents.Unit{
			LibraryType:  database.LibraryMovies,
			IntendedType: database.TypeMovie,
			Files:        []agents.FileRef{{Path: "movie.mkv"}},
		}
	}
	close(in)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan extracted) // never read, as when a downstream stage bails

	done := make(chan error, 1)
	go func() { done <- extract(ctx, registry, 4, in, out, NopProgress) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("extract did not return after cancellation")
	}
}
