package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/search"
	"github.com/nexalabs/nexa/internal/settings"
)

func (s *Server) handleSearch(c *gin.Context) {
	groups, err := s.Search.Search(search.Request{
		Query:     c.Query("query"),
		Pivot:     search.Pivot(c.Query("pivot")),
		SectionID: uintQueryPtr(c, "section"),
		Limit:     intQuery(c, "limit", 0),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) handleFileSystemRoots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"roots": s.Browser.Roots()})
}

func (s *Server) handleBrowseDirectory(c *gin.Context) {
	entries, err := s.Browser.Browse(c.Query("path"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleActiveJobs(c *gin.Context) {
	entries, err := s.JobStore.Active()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": entries})
}

// settingsGroups maps URL group names to load/store pairs. Each setter
// validates before persisting.
func (s *Server) handleGetSettings(c *gin.Context) {
	var (
		value interface{}
		err   error
	)
	switch c.Param("group") {
	case "transcode":
		value, err = s.Settings.Transcode()
	case "trickplay":
		value, err = s.Settings.Trickplay()
	case "tag-moderation":
		value, err = s.Settings.TagModeration()
	case "genre-mapping":
		value, err = s.Settings.GenreMapping()
	case "session":
		value, err = s.Settings.Session()
	case "job-notification":
		value, err = s.Settings.JobNotification()
	case "remote-metadata":
		value, err = s.Settings.RemoteMetadata()
	case "detail-fields":
		value, err = s.Settings.DetailFields()
	default:
		fail(c, errs.Ef(errs.NotFound, "settings group %q", c.Param("group")))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		fail(c, errs.E(errs.InvalidArgument, "read settings payload", err))
		return
	}

	decode := func(out interface{}) bool {
		if err := json.Unmarshal(raw, out); err != nil {
			fail(c, errs.E(errs.InvalidArgument, "invalid settings payload", err))
			return false
		}
		return true
	}

	switch c.Param("group") {
	case "transcode":
		opts, _ := s.Settings.Transcode()
		if decode(&opts) {
			err = s.Settings.SetTranscode(opts)
		}
	case "trickplay":
		opts, _ := s.Settings.Trickplay()
		if decode(&opts) {
			err = s.Settings.SetTrickplay(opts)
		}
	case "tag-moderation":
		var opts settings.TagModerationOptions
		if decode(&opts) {
			err = s.Settings.SetTagModeration(opts)
		}
	case "genre-mapping":
		var opts settings.GenreMappingOptions
		if decode(&opts) {
			err = s.Settings.SetGenreMapping(opts)
		}
	case "session":
		opts, _ := s.Settings.Session()
		if decode(&opts) {
			err = s.Settings.SetSession(opts)
		}
	case "job-notification":
		opts, _ := s.Settings.JobNotification()
		if decode(&opts) {
			err = s.Settings.SetJobNotification(opts)
		}
	case "remote-metadata":
		opts, _ := s.Settings.RemoteMetadata()
		if decode(&opts) {
			err = s.Settings.SetRemoteMetadata(opts)
		}
	case "detail-fields":
		var opts settings.DetailFieldOptions
		if decode(&opts) {
			err = s.Settings.SetDetailFields(opts)
		}
	default:
		fail(c, errs.Ef(errs.NotFound, "settings group %q", c.Param("group")))
		return
	}

	if c.IsAborted() {
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
