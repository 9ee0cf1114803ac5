package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexalabs/nexa/internal/auth"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/hubs"
)

// scopeFromQuery builds the hub scope addressed by context/section/type query
// parameters.
func scopeFromQuery(c *gin.Context) (hubs.Scope, error) {
	scope := hubs.Scope{
		Context:          hubs.Context(c.Query("context")),
		LibrarySectionID: uintQueryPtr(c, "section"),
	}
	if raw := c.Query("metadata_type"); raw != "" {
		mt := database.MetadataType(raw)
		scope.MetadataType = &mt
	}
	if err := scope.Validate(); err != nil {
		return scope, err
	}
	return scope, nil
}

// handleHubDefinitions returns the hub list for a scope with the stored admin
// configuration applied.
func (s *Server) handleHubDefinitions(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		fail(c, err)
		return
	}

	var defs []hubs.Definition
	switch scope.Context {
	case hubs.ContextHome:
		defs = hubs.HomeDefinitions()
	case hubs.ContextLibraryDiscover:
		section, err := s.Sections.GetByID(*scope.LibrarySectionID)
		if err != nil {
			fail(c, err)
			return
		}
		defs = hubs.DiscoverDefinitions(section.Type)
	case hubs.ContextItemDetail:
		defs = hubs.DetailDefinitions(*scope.MetadataType)
	}

	cfg, err := s.HubConfig.Get(scope)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hubs": hubs.Apply(defs, cfg)})
}

func (s *Server) handleHubItems(c *gin.Context) {
	user := auth.CurrentUser(c)
	req := hubs.ItemRequest{
		Type:      hubs.Type(c.Query("type")),
		Context:   hubs.Context(c.Query("context")),
		UserID:    user.ID,
		SectionID: uintQueryPtr(c, "section"),
		ItemID:    uintQueryPtr(c, "item"),
		Filter:    c.Query("filter"),
		Count:     intQuery(c, "count", 0),
	}
	items, err := s.Hubs.GetHubItems(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleHubPeople(c *gin.Context) {
	itemID := uintQueryPtr(c, "item")
	if itemID == nil {
		fail(c, errs.FieldError("item", "a context item is required"))
		return
	}
	people, err := s.Hubs.GetHubPeople(c.Request.Context(),
		hubs.Type(c.Query("type")), *itemID, intQuery(c, "count", 0))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"people": people})
}

type hubConfigRequest struct {
	Context          string   `json:"context"`
	LibrarySectionID *uint    `json:"library_section_id"`
	MetadataType     *string  `json:"metadata_type"`
	Enabled          []string `json:"enabled"`
	Disabled         []string `json:"disabled"`
}

func (s *Server) handleUpdateHubConfiguration(c *gin.Context) {
	var req hubConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.E(errs.InvalidArgument, "invalid hub configuration payload", err))
		return
	}

	scope := hubs.Scope{
		Context:          hubs.Context(req.Context),
		LibrarySectionID: req.LibrarySectionID,
	}
	if req.MetadataType != nil {
		mt := database.MetadataType(*req.MetadataType)
		scope.MetadataType = &mt
	}

	cfg := hubs.Configuration{Scope: scope}
	for _, t := range req.Enabled {
		cfg.Enabled = append(cfg.Enabled, hubs.Type(t))
	}
	for _, t := range req.Disabled {
		cfg.Disabled = append(cfg.Disabled, hubs.Type(t))
	}

	if err := s.HubConfig.Set(cfg); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
