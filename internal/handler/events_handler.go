package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
)

const (
	eventBuffer       = 64
	heartbeatInterval = 25 * time.Second
)

type eventStream interface {
	Stream(buffer int) (<-chan models.WorkflowEvent, func())
}

// EventsHandler streams workflow events as server-sent events.
type EventsHandler struct {
	events    eventStream
	heartbeat time.Duration
}

// NewEventsHandler constructs the handler.
func NewEventsHandler(events eventStream) *EventsHandler {
	return &EventsHandler{events: events, heartbeat: heartbeatInterval}
}

// Stream godoc
// @Summary Subscribe to workflow events
// @Description Department users only receive events for records of their own department code.
// @Tags Events
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	ch, cancel := h.events.Stream(eventBuffer)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			c.SSEvent("heartbeat", time.Now().UTC().Format(time.RFC3339))
			return true
		case event, open := <-ch:
			if !open {
				return false
			}
			if visible(actor, event) {
				c.SSEvent(event.Operation, event)
			}
			return true
		}
	})
}

func visible(actor models.Actor, event models.WorkflowEvent) bool {
	if !actor.Scoped() {
		return true
	}
	if event.Record == nil {
		return false
	}
	want := admissions.ResolveCode(actor.Department, actor.Faculty)
	return want != admissions.CodeUnknown && admissions.RecordCode(*event.Record) == want
}
