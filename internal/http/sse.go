package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/codemage/internal/events"
)

// handleEvents streams progress events via Server-Sent Events.
//
// Query parameters:
//   - generation_id: only forward events of one generation
//   - follow=false: close the stream after the first terminal event
//
// Example:
//
//	GET /api/v1/events?generation_id=6f1c...
//
//	id: 0b7e...
//	event: stage
//	data: {"generation_id":"6f1c...","type":"stage","step":1,...}
func (s *Server) handleEvents(c echo.Context) error {
	if s.events == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "event stream disabled"})
	}

	genID := c.QueryParam("generation_id")
	follow := c.QueryParam("follow") != "false"

	sub := s.events.Subscribe()
	defer sub.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(s.config.Heartbeat)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				return nil
			}
			if genID != "" && e.GenerationID != genID {
				continue
			}
			if err := writeEvent(w, e); err != nil {
				return nil
			}
			if !follow && e.Type.Terminal() {
				return nil
			}

		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			w.Flush()

		case <-ctx.Done():
			return nil
		}
	}
}

func writeEvent(w *echo.Response, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
