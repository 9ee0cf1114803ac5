package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nexalabs/nexa/internal/auth"
	"github.com/nexalabs/nexa/internal/events"
	"github.com/nexalabs/nexa/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Token auth already ran; browsers connect cross-origin in dev setups.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleWebsocket streams metadata-update and job-notification events to the
// client. New subscribers first receive a bootstrap frame with the currently
// active job entries so they do not miss in-flight work, then live events.
// The connection drops when the client's session is revoked.
func (s *Server) handleWebsocket(c *gin.Context) {
	user := auth.CurrentUser(c)
	session := auth.CurrentSession(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.Bus.Subscribe(user.ID,
		events.EventMetadataItemUpdated,
		events.EventMetadataItemCreated,
		events.EventMetadataItemDeleted,
		events.EventJobNotification,
		events.EventSessionRevoked,
	)
	defer cancel()

	if active, err := s.JobStore.Active(); err == nil && len(active) > 0 {
		bootstrap := events.Event{
			Type:      events.EventJobNotification,
			Timestamp: time.Now(),
			Payload:   active,
		}
		if writeEvent(conn, bootstrap) != nil {
			return
		}
	}

	// Reader goroutine drains client frames and surfaces disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Type == events.EventSessionRevoked {
				if payload, ok := evt.Payload.(map[string]string); ok &&
					payload["session_id"] == session.PublicID {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session revoked"),
						time.Now().Add(wsWriteTimeout))
					return
				}
				continue
			}
			if writeEvent(conn, evt) != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, evt events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(evt)
}
