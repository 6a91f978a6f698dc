package http

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/srdflow/internal/middleware"
	"github.com/example/srdflow/internal/realtime"
)

// streamEvents keeps an SSE connection open and forwards hub events to the
// client until it disconnects.
func (s *Server) streamEvents(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	client := &realtime.Client{
		ID:     uuid.New().String(),
		UserID: identity.UserID,
		Events: make(chan realtime.Event, 16),
	}
	s.hub.Register(client)
	defer s.hub.Unregister(client.ID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return false
			}
			c.SSEvent(event.Name, event.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
