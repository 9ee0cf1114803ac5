package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nexalabs/nexa/internal/auth"
	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/events"
	"github.com/nexalabs/nexa/internal/jobs"
)

func (s *Server) handleQueryItems(c *gin.Context) {
	var types []database.MetadataType
	if raw := c.Query("type"); raw != "" {
		types = []database.MetadataType{database.MetadataType(raw)}
	}
	query := catalog.ItemQuery{
		SectionID:  uintQueryPtr(c, "section"),
		ParentID:   uintQueryPtr(c, "parent"),
		Types:      types,
		TitleQuery: c.Query("title"),
		Genre:      c.Query("genre"),
		Order:      catalog.ItemOrder(c.DefaultQuery("sort", string(catalog.OrderSortTitle))),
		Descending: c.Query("descending") == "true",
		Limit:      intQuery(c, "limit", 50),
		Offset:     intQuery(c, "offset", 0),
		Cursor:     c.Query("cursor"),
	}
	items, next, err := s.Items.Query(query)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "next_cursor": next})
}

func (s *Server) handleGetItem(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	item, err := s.Items.GetByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) handleItemChildren(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	children, err := s.Items.Children(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": children})
}

type updateItemRequest struct {
	Title                 *string   `json:"title"`
	SortTitle             *string   `json:"sort_title"`
	OriginalTitle         *string   `json:"original_title"`
	Summary               *string   `json:"summary"`
	Tagline               *string   `json:"tagline"`
	ContentRating         *string   `json:"content_rating"`
	Year                  *int      `json:"year"`
	OriginallyAvailableAt *string   `json:"originally_available_at"`
	Rating                *float64  `json:"rating"`
	Genres                *[]string `json:"genres"`
	Tags                  *[]string `json:"tags"`
	ThumbURI              *string   `json:"thumb_uri"`
	ArtURI                *string   `json:"art_uri"`
	LogoURI               *string   `json:"logo_uri"`
}

func (r updateItemRequest) patch() (catalog.ItemPatch, error) {
	patch := catalog.ItemPatch{
		Title:         r.Title,
		SortTitle:     r.SortTitle,
		OriginalTitle: r.OriginalTitle,
		Summary:       r.Summary,
		Tagline:       r.Tagline,
		ContentRating: r.ContentRating,
		Year:          r.Year,
		Rating:        r.Rating,
		Genres:        r.Genres,
		Tags:          r.Tags,
		ThumbURI:      r.ThumbURI,
		ArtURI:        r.ArtURI,
		LogoURI:       r.LogoURI,
	}
	if r.OriginallyAvailableAt != nil {
		parsed, err := time.Parse("2006-01-02", *r.OriginallyAvailableAt)
		if err != nil {
			return patch, errs.FieldError("originallyAvailableAt", "date must be YYYY-MM-DD")
		}
		patch.OriginallyAvailableAt = &parsed
	}
	return patch, nil
}

// handleUpdateItem applies a user edit. Edited fields become locked against
// agent overwrites by the repository layer.
func (s *Server) handleUpdateItem(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.E(errs.InvalidArgument, "invalid item payload", err))
		return
	}
	patch, err := req.patch()
	if err != nil {
		fail(c, err)
		return
	}
	item, err := s.Items.UpdateFromUser(id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	s.publishItemUpdated(item)
	c.JSON(http.StatusOK, item)
}

func (s *Server) handleRefreshItem(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := s.Items.GetByID(id); err != nil {
		fail(c, err)
		return
	}
	uuid, err := s.Scheduler.EnqueueWith(jobs.Payload{
		JobType:         database.JobMetadataRefresh,
		MetadataItemID:  &id,
		IncludeChildren: c.Query("include_children") == "true",
		Force:           true,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": uuid})
}

func (s *Server) handleAnalyzeItem(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := s.Items.GetByID(id); err != nil {
		fail(c, err)
		return
	}
	uuid, err := s.Scheduler.Enqueue(database.JobFileAnalysis, nil, &id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": uuid})
}

type fieldsRequest struct {
	Fields []string `json:"fields"`
}

func (s *Server) handleLockFields(c *gin.Context) {
	s.mutateLocks(c, s.Items.LockFields)
}

func (s *Server) handleUnlockFields(c *gin.Context) {
	s.mutateLocks(c, s.Items.UnlockFields)
}

func (s *Server) mutateLocks(c *gin.Context, op func(uint, []string) (*database.MetadataItem, error)) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	var req fieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.E(errs.InvalidArgument, "invalid fields payload", err))
		return
	}
	item, err := op(id, req.Fields)
	if err != nil {
		fail(c, err)
		return
	}
	s.publishItemUpdated(item)
	c.JSON(http.StatusOK, item)
}

func (s *Server) handlePromote(c *gin.Context) {
	s.setPromoted(c, true)
}

func (s *Server) handleUnpromote(c *gin.Context) {
	s.setPromoted(c, false)
}

func (s *Server) setPromoted(c *gin.Context, promoted bool) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Items.SetPromoted(id, promoted); err != nil {
		fail(c, err)
		return
	}
	item, err := s.Items.GetByID(id)
	if err != nil {
		fail(c, err)
		return
	}
	s.publishItemUpdated(item)
	c.JSON(http.StatusOK, item)
}

func (s *Server) handleMarkWatched(c *gin.Context) {
	s.setWatched(c, true)
}

func (s *Server) handleMarkUnwatched(c *gin.Context) {
	s.setWatched(c, false)
}

func (s *Server) setWatched(c *gin.Context, watched bool) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := s.Items.GetByID(id); err != nil {
		fail(c, err)
		return
	}
	state, err := s.States.SetWatched(auth.CurrentUser(c).ID, id, watched)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) publishItemUpdated(item *database.MetadataItem) {
	s.Bus.Publish(events.Event{
		Type:    events.EventMetadataItemUpdated,
		Payload: item,
	})
}
