package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexalabs/nexa/internal/auth"
	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/config"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/events"
	"github.com/nexalabs/nexa/internal/fsbrowse"
	"github.com/nexalabs/nexa/internal/hubs"
	"github.com/nexalabs/nexa/internal/jobs"
	"github.com/nexalabs/nexa/internal/playback"
	"github.com/nexalabs/nexa/internal/search"
	"github.com/nexalabs/nexa/internal/settings"
)

type serverFixture struct {
	srv        *Server
	items      *catalog.ItemRepository
	sections   *catalog.SectionRepository
	states     *catalog.StateRepository
	playback   *playback.Manager
	viewer     *database.User
	adminToken string
	userToken  string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	settingsStore := settings.NewStore(db)
	authService := auth.NewService(db, "test-secret", settingsStore, bus)
	sections := catalog.NewSectionRepository(db)
	items := catalog.NewItemRepository(db)
	parts := catalog.NewPartRepository(db)
	states := catalog.NewStateRepository(db)

	manager := playback.NewManager(config.TranscodeConfig{}, settingsStore)
	t.Cleanup(manager.Close)

	cfg := &config.Config{}
	cfg.Server.EnableCORS = false

	srv := New(Deps{
		Config:    cfg,
		DB:        db,
		Bus:       bus,
		Settings:  settingsStore,
		Auth:      authService,
		Sections:  sections,
		Items:     items,
		Parts:     parts,
		States:    states,
		Hubs:      hubs.NewEngine(db, items, sections),
		HubConfig: hubs.NewConfigStore(db),
		Search:    search.NewEngine(items),
		Browser:   &fsbrowse.Browser{},
		JobStore:  jobs.NewNotificationStore(db),
		Playback:  manager,
	})

	_, err = authService.CreateUser("admin@example.com", "Admin", "password123", true)
	require.NoError(t, err)
	viewer, err := authService.CreateUser("viewer@example.com", "Viewer", "password123", false)
	require.NoError(t, err)

	login := func(email string) string {
		result, err := authService.Login(auth.LoginInput{
			Email: email, Password: "password123", ClientIdentifier: "test-client",
		})
		require.NoError(t, err)
		return result.Token
	}

	return &serverFixture{
		srv:        srv,
		items:      items,
		sections:   sections,
		states:     states,
		playback:   manager,
		viewer:     viewer,
		adminToken: login("admin@example.com"),
		userToken:  login("viewer@example.com"),
	}
}

func (fx *serverFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestUnauthenticatedRequestGetsBearerChallenge(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(t, http.MethodGet, "/api/v1/manage/info", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `Bearer error="invalid_token"`)
}

func TestLoginAndManageInfo(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/login", "", jsonBody{
		"email": "admin@example.com", "password": "password123", "client_identifier": "c1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	require.NotEmpty(t, loginResp.Token)

	rec = fx.do(t, http.MethodGet, "/api/v1/manage/info", loginResp.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin@example.com")
}

func TestLoginWithBadCredentials(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(t, http.MethodPost, "/api/v1/login", "", jsonBody{
		"email": "admin@example.com", "password": "wrong", "client_identifier": "c1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
}

func TestSectionCRUDRequiresAdmin(t *testing.T) {
	fx := newServerFixture(t)
	payload := jsonBody{
		"name": "Movies", "type": "movies", "language": "en",
		"roots": []string{t.TempDir()},
	}

	rec := fx.do(t, http.MethodPost, "/api/v1/library/sections", fx.userToken, payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/library/sections", fx.adminToken, payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/library/sections", fx.userToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Movies")
}

func TestGetMissingItemMapsToNotFound(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(t, http.MethodGet, "/api/v1/metadata/99999", fx.userToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestHubDefinitionsRejectHomeScopedToLibrary(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(t, http.MethodGet, "/api/v1/hubs?context=Home&section=1", fx.userToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Home hub configuration cannot be scoped to library")
}

func TestUpdateSettingsValidation(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPut, "/api/v1/settings/transcode", fx.adminToken, jsonBody{
		"segmentDurationSeconds": 99,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "transcode.segmentDurationSeconds")

	rec = fx.do(t, http.MethodPut, "/api/v1/settings/transcode", fx.adminToken, jsonBody{
		"segmentDurationSeconds": 4,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/settings/transcode", fx.userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var opts settings.TranscodeOptions
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
	assert.Equal(t, 4, opts.SegmentDurationSeconds)
}

func TestUpdateDetailFieldConfiguration(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPut, "/api/v1/settings/detail-fields", fx.adminToken, jsonBody{
		"fields": jsonBody{"movie": []string{"title", "shoeSize"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "detailFields.movie")

	rec = fx.do(t, http.MethodPut, "/api/v1/settings/detail-fields", fx.adminToken, jsonBody{
		"fields": jsonBody{"movie": []string{"title", "summary", "cast"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/settings/detail-fields", fx.userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var opts settings.DetailFieldOptions
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
	assert.Equal(t, []string{"title", "summary", "cast"}, opts.Fields["movie"])
}

func TestSearchEndpoint(t *testing.T) {
	fx := newServerFixture(t)
	section, err := fx.sections.Create("Movies", database.LibraryMovies, "en", []string{t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, fx.items.Create(&database.MetadataItem{
		LibrarySectionID: section.ID, Type: database.TypeMovie, Title: "Arrival",
	}))

	rec := fx.do(t, http.MethodGet, "/api/v1/search?query=arr", fx.userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Arrival")

	rec = fx.do(t, http.MethodGet, "/api/v1/search?query=", fx.userToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaybackProgressFeedsContinueWatching(t *testing.T) {
	fx := newServerFixture(t)
	section, err := fx.sections.Create("Movies", database.LibraryMovies, "en", []string{t.TempDir()})
	require.NoError(t, err)
	item := &database.MetadataItem{
		LibrarySectionID: section.ID, Type: database.TypeMovie, Title: "Heat",
	}
	require.NoError(t, fx.items.Create(item))

	part := &database.MediaPart{MetadataItemID: item.ID, Path: "/media/heat.mkv", DurationMs: 7200000}
	session, err := fx.playback.Start(context.Background(), fx.viewer.ID, item, part,
		playback.Plan{Mode: playback.DirectPlay})
	require.NoError(t, err)

	progressURL := fmt.Sprintf("/api/v1/playback/%s/progress", session.ID)
	rec := fx.do(t, http.MethodPost, progressURL, fx.userToken, jsonBody{"position_ms": 600000})
	require.Equal(t, http.StatusOK, rec.Code)

	// Only the session owner may report progress on it.
	rec = fx.do(t, http.MethodPost, progressURL, fx.adminToken, jsonBody{"position_ms": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	state, err := fx.states.Get(fx.viewer.ID, item.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, int64(600000), state.PositionMs)
	assert.False(t, state.Watched)

	hubURL := fmt.Sprintf("/api/v1/hubs/items?context=LibraryDiscover&section=%d&type=ContinueWatching", section.ID)
	rec = fx.do(t, http.MethodGet, hubURL, fx.userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Heat")
}

func TestFilesystemBrowseIsAdminOnly(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodGet, "/api/v1/filesystem/roots", fx.userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/filesystem/roots", fx.adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/filesystem/browse?path=relative", fx.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "FILE_SYSTEM_BROWSE")
}

func TestRevokedSessionIsRejected(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/logout", fx.userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/manage/info", fx.userToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "revoked")
}

type jsonBody = map[string]interface{}
