package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/models"
)

// WorkflowEventHandler reacts to a committed workflow mutation.
type WorkflowEventHandler func(ctx context.Context, event models.WorkflowEvent) error

type namedHandler struct {
	name    string
	handler WorkflowEventHandler
}

// WorkflowEvents fans committed mutations out to subscribers and streaming clients.
type WorkflowEvents struct {
	mu       sync.RWMutex
	handlers []namedHandler
	streams  map[int]chan models.WorkflowEvent
	nextID   int
	logger   *zap.Logger
}

// NewWorkflowEvents constructs an empty bus.
func NewWorkflowEvents(logger *zap.Logger) *WorkflowEvents {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowEvents{streams: make(map[int]chan models.WorkflowEvent), logger: logger}
}

// Subscribe registers a synchronous handler. Handler errors are logged and never fail the
// mutation that produced the event.
func (b *WorkflowEvents) Subscribe(name string, handler WorkflowEventHandler) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, namedHandler{name: name, handler: handler})
	b.mu.Unlock()
}

// Stream opens a buffered channel receiving every subsequent event. Slow readers drop events.
func (b *WorkflowEvents) Stream(buffer int) (<-chan models.WorkflowEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan models.WorkflowEvent, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.streams[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if open, ok := b.streams[id]; ok {
			delete(b.streams, id)
			close(open)
		}
	}
	return ch, cancel
}

// Close ends every open stream. Handlers stay registered.
func (b *WorkflowEvents) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.streams {
		delete(b.streams, id)
		close(ch)
	}
}

// Publish delivers event to handlers in registration order, then to open streams.
func (b *WorkflowEvents) Publish(ctx context.Context, event models.WorkflowEvent) {
	if b == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	b.mu.RLock()
	handlers := append([]namedHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.handler(ctx, event); err != nil {
			b.logger.Warn("workflow event handler failed",
				zap.String("handler", h.name),
				zap.String("operation", event.Operation),
				zap.String("scholar_id", event.ScholarID),
				zap.Error(err),
			)
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.streams {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropping workflow event for slow stream", zap.String("scholar_id", event.ScholarID))
		}
	}
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditSubscriber persists every event as an audit log entry with before and after images.
func AuditSubscriber(audit auditLogger) WorkflowEventHandler {
	return func(ctx context.Context, event models.WorkflowEvent) error {
		if audit == nil {
			return nil
		}
		entry := &models.AuditLog{
			Action:     event.Operation,
			Resource:   string(event.Table),
			ResourceID: models.StrPtr(event.ScholarID),
			UserAgent:  "workflow",
		}
		if event.ActorID != "" {
			actor := event.ActorID
			entry.UserID = &actor
		}
		if event.Previous != nil {
			if raw, err := json.Marshal(event.Previous); err == nil {
				entry.OldValues = raw
			}
		}
		if event.Record != nil {
			if raw, err := json.Marshal(event.Record); err == nil {
				entry.NewValues = raw
			}
		}
		return audit.CreateAuditLog(ctx, entry)
	}
}

// MetricsSubscriber counts successful transitions.
func MetricsSubscriber(metrics *MetricsService) WorkflowEventHandler {
	return func(_ context.Context, event models.WorkflowEvent) error {
		metrics.RecordTransition(event.Operation, string(event.Table), "ok")
		return nil
	}
}
