// Package server wires the HTTP surface: JSON endpoints over the catalog,
// hub, job, and settings layers, plus streaming and websocket routes.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/auth"
	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/config"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/events"
	"github.com/nexalabs/nexa/internal/fsbrowse"
	"github.com/nexalabs/nexa/internal/hubs"
	"github.com/nexalabs/nexa/internal/images"
	"github.com/nexalabs/nexa/internal/jobs"
	"github.com/nexalabs/nexa/internal/logger"
	"github.com/nexalabs/nexa/internal/playback"
	"github.com/nexalabs/nexa/internal/scanner"
	"github.com/nexalabs/nexa/internal/search"
	"github.com/nexalabs/nexa/internal/settings"
	"github.com/nexalabs/nexa/internal/trickplay"
)

// Deps carries everything the route handlers reach into.
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Bus       *events.Bus
	Settings  *settings.Store
	Auth      *auth.Service
	Sections  *catalog.SectionRepository
	Items     *catalog.ItemRepository
	Parts     *catalog.PartRepository
	States    *catalog.StateRepository
	Hubs      *hubs.Engine
	HubConfig *hubs.ConfigStore
	Search    *search.Engine
	Browser   *fsbrowse.Browser
	Scheduler *jobs.Scheduler
	JobStore  *jobs.NotificationStore
	Scanner   *scanner.Scanner
	Images    *images.Processor
	Trickplay *trickplay.Generator
	Playback  *playback.Manager
	Profiles  *playback.ProfileStore
}

// Server is the HTTP front end.
type Server struct {
	Deps
	engine *gin.Engine
	http   *http.Server
}

func New(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLog())

	if deps.Config.Server.EnableCORS {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "Accept")
		engine.Use(cors.New(corsCfg))
	}

	s := &Server{Deps: deps, engine: engine}
	s.routes()
	return s
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api/v1")

	api.POST("/login", s.handleLogin)
	api.POST("/refresh", s.handleRefresh)
	api.POST("/logout", s.handleLogout)

	authed := api.Group("", s.Auth.Authenticated())
	admin := authed.Group("", s.Auth.Administrator())

	authed.GET("/manage/info", s.handleManageInfo)
	authed.GET("/server/info", s.handleServerInfo)

	authed.GET("/library/sections", s.handleListSections)
	admin.POST("/library/sections", s.handleCreateSection)
	authed.GET("/library/sections/:id", s.handleGetSection)
	admin.PUT("/library/sections/:id", s.handleRenameSection)
	admin.DELETE("/library/sections/:id", s.handleDeleteSection)
	authed.GET("/library/sections/:id/children", s.handleSectionChildren)
	authed.GET("/library/sections/:id/letter-index", s.handleLetterIndex)
	authed.GET("/library/sections/:id/root-item-types", s.handleRootItemTypes)
	authed.GET("/library/sections/:id/sort-fields", s.handleSortFields)
	admin.POST("/library/sections/:id/scan", s.handleStartScan)
	admin.POST("/library/sections/:id/refresh", s.handleRefreshLibrary)

	authed.GET("/metadata", s.handleQueryItems)
	authed.GET("/metadata/:id", s.handleGetItem)
	authed.GET("/metadata/:id/children", s.handleItemChildren)
	admin.PUT("/metadata/:id", s.handleUpdateItem)
	admin.POST("/metadata/:id/refresh", s.handleRefreshItem)
	admin.POST("/metadata/:id/analyze", s.handleAnalyzeItem)
	admin.POST("/metadata/:id/lock", s.handleLockFields)
	admin.POST("/metadata/:id/unlock", s.handleUnlockFields)
	admin.POST("/metadata/:id/promote", s.handlePromote)
	admin.POST("/metadata/:id/unpromote", s.handleUnpromote)
	authed.POST("/metadata/:id/watched", s.handleMarkWatched)
	authed.DELETE("/metadata/:id/watched", s.handleMarkUnwatched)

	authed.GET("/hubs", s.handleHubDefinitions)
	authed.GET("/hubs/items", s.handleHubItems)
	authed.GET("/hubs/people", s.handleHubPeople)
	admin.PUT("/hubs/configuration", s.handleUpdateHubConfiguration)

	authed.GET("/search", s.handleSearch)

	admin.GET("/filesystem/roots", s.handleFileSystemRoots)
	admin.GET("/filesystem/browse", s.handleBrowseDirectory)

	authed.GET("/jobs/active", s.handleActiveJobs)

	authed.GET("/settings/:group", s.handleGetSettings)
	admin.PUT("/settings/:group", s.handleUpdateSettings)

	authed.GET("/ws", s.handleWebsocket)

	authed.POST("/playback/profile", s.handlePutProfile)
	authed.POST("/playback/start", s.handleStartPlayback)
	authed.POST("/playback/:session/progress", s.handlePlaybackProgress)
	authed.DELETE("/playback/:session", s.handleStopPlayback)
	authed.GET("/media/:id", s.handleDirectMedia)
	authed.GET("/playback/dash/:session/manifest.mpd", s.handleDASHManifest)
	authed.GET("/playback/dash/:session/:segment", s.handleSegment)
	authed.GET("/playback/hls/:session/manifest.m3u8", s.handleHLSManifest)
	authed.GET("/playback/hls/:session/:segment", s.handleSegment)
	authed.GET("/images/transcode", s.handleImageTranscode)
	authed.GET("/images/trickplay/:item/bif", s.handleTrickplay)
}

// Run binds the listener and serves until ctx is cancelled, then drains with
// a shutdown grace period. A failed bind is returned immediately so main can
// exit with the port-bind code.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errs.E(errs.Unavailable, "bind "+addr, err)
	}

	s.http = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.Config.Server.ReadTimeout,
		WriteTimeout: s.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errs.E(errs.Internal, "http server", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("http server draining")
	return s.http.Shutdown(shutdownCtx)
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
