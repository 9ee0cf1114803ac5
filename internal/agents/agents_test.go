package agents

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/settings"
)

func TestHintsScalarFirstWins(t *testing.T) {
	hints := NewHints()
	hints.Set(HintTitle, "From Sidecar", "sidecar-nfo")
	hints.Set(HintTitle, "From Remote", "remote-x")

	got, ok := hints.String(HintTitle)
	require.True(t, ok)
	assert.Equal(t, "From Sidecar", got)
	assert.Equal(t, "sidecar-nfo", hints.Scalars[HintTitle].Source)
}

func TestHintsMergeUnions(t *testing.T) {
	a := NewHints()
	a.AddGenre("Drama")
	a.AddExternalID("tmdb", "1")

	b := NewHints()
	b.AddGenre("Drama")
	b.AddGenre("Sci-Fi")
	b.AddExternalID("tmdb", "2") // loses to a
	b.AddExternalID("imdb", "tt3")

	a.Merge(b)
	assert.Equal(t, []string{"Drama", "Sci-Fi"}, a.Genres)
	assert.Equal(t, "1", a.ExternalIDs["tmdb"])
	assert.Equal(t, "tt3", a.ExternalIDs["imdb"])
}

func TestRegistryOrdersByCategory(t *testing.T) {
	reg := NewRegistry(NewLocalFilenameAgent(), NewEmbeddedAudioAgent(), NewSidecarNFOAgent())

	chain := reg.ForLibrary(database.LibraryAudiobooks)
	require.Len(t, chain, 3)
	assert.Equal(t, "sidecar-nfo", chain[0].Name())
	assert.Equal(t, "embedded-audio", chain[1].Name())
	assert.Equal(t, "local-filename", chain[2].Name())

	// Movies never run the audio tag reader.
	for _, agent := range reg.ForLibrary(database.LibraryMovies) {
		assert.NotEqual(t, "embedded-audio", agent.Name())
	}
}

func TestLocalFilenameMovie(t *testing.T) {
	agent := NewLocalFilenameAgent()
	unit := &Unit{
		LibraryType:  database.LibraryMovies,
		IntendedType: database.TypeMovie,
		Files:        []FileRef{{Path: "/media/movies/The.Quiet.Place (2018)/The.Quiet.Place (2018).mkv", Ext: ".mkv"}},
	}
	hints, err := agent.Extract(context.Background(), unit)
	require.NoError(t, err)

	title, _ := hints.String(HintTitle)
	assert.Equal(t, "The Quiet Place", title)
	year, _ := hints.Int(HintYear)
	assert.Equal(t, 2018, year)
}

func TestLocalFilenameEpisode(t *testing.T) {
	agent := NewLocalFilenameAgent()
	unit := &Unit{
		LibraryType:  database.LibraryTVShows,
		IntendedType: database.TypeEpisode,
		ShowTitle:    "Show Name",
		Files:        []FileRef{{Path: "/tv/Show Name/Season 02/S02E03 - The Heist.mkv", Ext: ".mkv"}},
	}
	hints, err := agent.Extract(context.Background(), unit)
	require.NoError(t, err)

	season, _ := hints.Int(HintSeasonNumber)
	episode, _ := hints.Int(HintEpisodeNumber)
	assert.Equal(t, 2, season)
	assert.Equal(t, 3, episode)
	title, _ := hints.String(HintTitle)
	assert.Equal(t, "The Heist", title)
	show, _ := hints.String(HintShowTitle)
	assert.Equal(t, "Show Name", show)
}

func TestLocalFilenameTrack(t *testing.T) {
	agent := NewLocalFilenameAgent()
	unit := &Unit{
		LibraryType:  database.LibraryMusic,
		IntendedType: database.TypeTrack,
		ArtistName:   "Artist",
		AlbumTitle:   "Album",
		Files:        []FileRef{{Path: "/music/Artist/Album/07 - Seven Nation Army.flac", Ext: ".flac"}},
	}
	hints, err := agent.Extract(context.Background(), unit)
	require.NoError(t, err)

	track, _ := hints.Int(HintTrackNumber)
	assert.Equal(t, 7, track)
	title, _ := hints.String(HintTitle)
	assert.Equal(t, "Seven Nation Army", title)
	album, _ := hints.String(HintAlbum)
	assert.Equal(t, "Album", album)
}

func TestSidecarNFO(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "film.mkv")
	nfo := filepath.Join(dir, "film.nfo")
	require.NoError(t, os.WriteFile(media, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(nfo, []byte(`<?xml version="1.0"?>
<movie>
  <title>The Expanse</title>
  <plot>Space.</plot>
  <year>2015</year>
  <mpaa>TV-14</mpaa>
  <premiered>2015-12-14</premiered>
  <genre>Sci-Fi</genre>
  <genre>Drama</genre>
  <tag>spoiler</tag>
  <director>Someone</director>
  <actor><name>Jane Doe</name><role>Captain</role></actor>
  <uniqueid type="imdb">tt3230854</uniqueid>
</movie>`), 0o644))

	agent := NewSidecarNFOAgent()
	unit := &Unit{
		LibraryType:  database.LibraryMovies,
		IntendedType: database.TypeMovie,
		Files:        []FileRef{{Path: media, Ext: ".mkv"}},
	}
	hints, err := agent.Extract(context.Background(), unit)
	require.NoError(t, err)

	title, _ := hints.String(HintTitle)
	assert.Equal(t, "The Expanse", title)
	year, _ := hints.Int(HintYear)
	assert.Equal(t, 2015, year)
	assert.Equal(t, []string{"Sci-Fi", "Drama"}, hints.Genres)
	assert.Equal(t, []string{"spoiler"}, hints.Tags)
	assert.Equal(t, "tt3230854", hints.ExternalIDs["imdb"])
	require.Len(t, hints.Performers, 2)
	assert.Equal(t, database.CreditDirector, hints.Performers[0].Type)
	assert.Equal(t, "Captain", hints.Performers[1].Role)
}

func TestRemoteCatalogAgentFillsGapsFromProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Inception", r.URL.Query().Get("query"))
		assert.Equal(t, "2010", r.URL.Query().Get("year"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[{"title":"Inception","summary":"A thief who steals secrets through dreams.","rating":8.8,"year":2010,"genres":["Science Fiction"],"external_ids":{"imdb":"tt1375666"}}]}`)
	}))
	defer srv.Close()

	client, err := NewRemoteClient(settings.RemoteMetadataHttpOptions{
		BaseAddress: srv.URL, TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	agent := NewRemoteCatalogAgent(client)

	hints, err := agent.Extract(context.Background(), &Unit{
		LibraryType:  database.LibraryMovies,
		IntendedType: database.TypeMovie,
		Files:        []FileRef{{Path: "/media/movies/Inception (2010).mkv"}},
	})
	require.NoError(t, err)

	summary, ok := hints.String(HintSummary)
	require.True(t, ok)
	assert.Equal(t, "A thief who steals secrets through dreams.", summary)
	rating, ok := hints.Float(HintRating)
	require.True(t, ok)
	assert.InDelta(t, 8.8, rating, 0.001)
	assert.Equal(t, []string{"Science Fiction"}, hints.Genres)
	assert.Equal(t, "tt1375666", hints.ExternalIDs["imdb"])
}

func TestRemoteCatalogAgentTreatsProviderMissAsNoHints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client, err := NewRemoteClient(settings.RemoteMetadataHttpOptions{
		BaseAddress: srv.URL, TimeoutSeconds: 5,
	})
	require.NoError(t, err)

	hints, err := NewRemoteCatalogAgent(client).Extract(context.Background(), &Unit{
		LibraryType:  database.LibraryMovies,
		IntendedType: database.TypeMovie,
		Files:        []FileRef{{Path: "/media/movies/Nowhere (1999).mkv"}},
	})
	require.NoError(t, err)
	assert.Empty(t, hints.Scalars)
	assert.Empty(t, hints.Genres)
}
