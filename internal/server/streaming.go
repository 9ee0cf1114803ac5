package server

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexalabs/nexa/internal/auth"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/images"
	"github.com/nexalabs/nexa/internal/playback"
)

// handlePutProfile stores a client capability profile.
func (s *Server) handlePutProfile(c *gin.Context) {
	var req struct {
		ClientIdentifier string                     `json:"client_identifier"`
		Profile          playback.CapabilityProfile `json:"profile"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.E(errs.InvalidArgument, "invalid capability profile payload", err))
		return
	}
	if req.ClientIdentifier == "" {
		fail(c, errs.FieldError("clientIdentifier", "client identifier is required"))
		return
	}
	s.Profiles.Put(req.ClientIdentifier, req.Profile)
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

type startPlaybackRequest struct {
	MetadataItemID   uint   `json:"metadata_item_id"`
	ClientIdentifier string `json:"client_identifier"`
	ProfileVersion   int    `json:"profile_version"`
}

// handleStartPlayback resolves a stream plan for the item and opens a
// session. A capability version mismatch still produces a plan, flagged so
// the client re-uploads its profile and re-plans.
func (s *Server) handleStartPlayback(c *gin.Context) {
	var req startPlaybackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.E(errs.InvalidArgument, "invalid playback payload", err))
		return
	}

	item, err := s.Items.GetByID(req.MetadataItemID)
	if err != nil {
		fail(c, err)
		return
	}
	parts, err := s.Parts.ForItem(item.ID)
	if err != nil {
		fail(c, err)
		return
	}

	profile, versionMatch := s.Profiles.Get(req.ClientIdentifier, req.ProfileVersion)
	part, err := playback.SelectPart(parts, &profile)
	if err != nil {
		fail(c, err)
		return
	}

	opts, err := s.Settings.Transcode()
	if err != nil {
		fail(c, err)
		return
	}
	plan := playback.BuildPlan(part, &profile, opts)
	plan.CapabilityMismatch = !versionMatch

	session, err := s.Playback.Start(c.Request.Context(), auth.CurrentUser(c).ID, item, part, plan)
	if err != nil {
		fail(c, err)
		return
	}

	resp := gin.H{
		"session_id": session.ID,
		"plan":       plan,
	}
	switch plan.Mode {
	case playback.DirectPlay:
		resp["url"] = fmt.Sprintf("/api/v1/media/%d", item.ID)
	default:
		resp["dash_manifest"] = fmt.Sprintf("/api/v1/playback/dash/%s/manifest.mpd", session.ID)
		resp["hls_manifest"] = fmt.Sprintf("/api/v1/playback/hls/%s/manifest.m3u8", session.ID)
	}
	c.JSON(http.StatusOK, resp)
}

// handlePlaybackProgress is the client's position heartbeat. It stamps the
// session alive and persists the resume state the ContinueWatching hub reads.
func (s *Server) handlePlaybackProgress(c *gin.Context) {
	session, err := s.Playback.Get(c.Param("session"))
	if err != nil {
		fail(c, err)
		return
	}
	if session.UserID != auth.CurrentUser(c).ID {
		fail(c, errs.E(errs.Forbidden, "playback session belongs to another user"))
		return
	}

	var req struct {
		PositionMs int64 `json:"position_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.E(errs.InvalidArgument, "invalid progress payload", err))
		return
	}

	state, err := s.States.RecordProgress(session.UserID, session.ItemID, req.PositionMs, session.DurationMs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleStopPlayback(c *gin.Context) {
	s.Playback.Stop(c.Param("session"))
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// handleDirectMedia serves the item's media file directly. http.ServeFile
// honors Range requests for seeking.
func (s *Server) handleDirectMedia(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	parts, err := s.Parts.ForItem(id)
	if err != nil {
		fail(c, err)
		return
	}
	if len(parts) == 0 {
		fail(c, errs.E(errs.NotFound, "item has no media parts"))
		return
	}
	part := parts[0]
	if uuid := c.Query("part"); uuid != "" {
		found := false
		for i := range parts {
			if parts[i].UUID == uuid {
				part = parts[i]
				found = true
				break
			}
		}
		if !found {
			fail(c, errs.Ef(errs.NotFound, "media part %q", uuid))
			return
		}
	}
	if _, err := os.Stat(part.Path); err != nil {
		fail(c, errs.E(errs.NotFound, "media file missing on disk"))
		return
	}
	http.ServeFile(c.Writer, c.Request, part.Path)
}

func (s *Server) handleDASHManifest(c *gin.Context) {
	session, err := s.Playback.Get(c.Param("session"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/dash+xml", []byte(playback.RenderDASH(session)))
}

func (s *Server) handleHLSManifest(c *gin.Context) {
	session, err := s.Playback.Get(c.Param("session"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(playback.RenderHLS(session)))
}

// handleSegment serves one produced segment, blocking until the transcoder
// writes it.
func (s *Server) handleSegment(c *gin.Context) {
	name := c.Param("segment")
	var index int
	if _, err := fmt.Sscanf(name, "seg-%d", &index); err != nil ||
		!(strings.HasSuffix(name, ".m4s") || strings.HasSuffix(name, ".ts")) {
		fail(c, errs.Ef(errs.InvalidArgument, "invalid segment name %q", name))
		return
	}
	data, err := s.Playback.Segment(c.Request.Context(), c.Param("session"), index)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "video/iso.segment", data)
}

// handleImageTranscode resizes and re-encodes artwork, negotiating the output
// format from the Accept header unless one is requested explicitly.
func (s *Server) handleImageTranscode(c *gin.Context) {
	format, err := images.NegotiateFormat(c.GetHeader("Accept"), c.Query("format"))
	if err != nil {
		fail(c, err)
		return
	}
	path, err := s.Images.Transcode(c.Request.Context(), images.Request{
		Source:  c.Query("uri"),
		Width:   intQuery(c, "width", 0),
		Height:  intQuery(c, "height", 0),
		Quality: intQuery(c, "quality", 0),
		Format:  format,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Header("Content-Type", format.ContentType())
	c.File(path)
}

// handleTrickplay serves the item's BIF document.
func (s *Server) handleTrickplay(c *gin.Context) {
	id, err := idParam(c, "item")
	if err != nil {
		fail(c, err)
		return
	}
	parts, err := s.Parts.ForItem(id)
	if err != nil {
		fail(c, err)
		return
	}
	for _, part := range parts {
		path := s.Trickplay.Path(part.UUID)
		if _, err := os.Stat(path); err == nil {
			c.Header("Content-Type", "application/octet-stream")
			c.File(path)
			return
		}
	}
	fail(c, errs.E(errs.NotFound, "no trickplay data for item"))
}
