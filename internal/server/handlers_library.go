package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

func (s *Server) handleListSections(c *gin.Context) {
	sections, err := s.Sections.List()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

type createSectionRequest struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Language string   `json:"language"`
	Roots    []string `json:"roots"`
}

func (s *Server) handleCreateSection(c *gin.Context) {
	var req createSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.E(errs.InvalidArgument, "invalid section payload", err))
		return
	}
	section, err := s.Sections.Create(req.Name, database.LibraryType(req.Type), req.Language, req.Roots)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, section)
}

func (s *Server) handleGetSection(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	section, err := s.Sections.GetByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, section)
}

func (s *Server) handleRenameSection(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.E(errs.InvalidArgument, "invalid rename payload", err))
		return
	}
	if err := s.Sections.Rename(id, req.Name); err != nil {
		fail(c, err)
		return
	}
	section, err := s.Sections.GetByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, section)
}

func (s *Server) handleDeleteSection(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Sections.Delete(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleSectionChildren lists the section's root items with the requested
// ordering and pagination.
func (s *Server) handleSectionChildren(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	section, err := s.Sections.GetByID(id)
	if err != nil {
		fail(c, err)
		return
	}

	order := catalog.ItemOrder(c.DefaultQuery("sort", string(catalog.OrderSortTitle)))
	query := catalog.ItemQuery{
		SectionID:  &section.ID,
		Types:      catalog.RootItemTypes(section.Type),
		Order:      order,
		Descending: c.Query("descending") == "true",
		Limit:      intQuery(c, "limit", 50),
		Offset:     intQuery(c, "offset", 0),
		Cursor:     c.Query("cursor"),
		TitleQuery: c.Query("title"),
		Genre:      c.Query("genre"),
	}
	items, next, err := s.Items.Query(query)
	if err != nil {
		fail(c, err)
		return
	}
	total, err := s.Items.Count(query)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "next_cursor": next})
}

func (s *Server) handleLetterIndex(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	section, err := s.Sections.GetByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	buckets, err := s.Sections.LetterIndex(section.ID, catalog.RootItemTypes(section.Type))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"letters": buckets})
}

func (s *Server) handleRootItemTypes(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	section, err := s.Sections.GetByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": catalog.RootItemTypes(section.Type)})
}

func (s *Server) handleSortFields(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	section, err := s.Sections.GetByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": catalog.AvailableSortFields(section.Type)})
}

// handleStartScan submits a library scan job. A scan already active for the
// section returns its existing notification entry.
func (s *Server) handleStartScan(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := s.Sections.GetByID(id); err != nil {
		fail(c, err)
		return
	}
	uuid, err := s.Scheduler.Enqueue(database.JobLibraryScan, &id, nil)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": uuid})
}

// handleRefreshLibrary forces a full metadata refresh of the section.
func (s *Server) handleRefreshLibrary(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := s.Sections.GetByID(id); err != nil {
		fail(c, err)
		return
	}
	uuid, err := s.Scheduler.Enqueue(database.JobMetadataRefresh, &id, nil)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": uuid})
}
