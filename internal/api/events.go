package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/v4lcap/internal/api/models"
	"github.com/smazurov/v4lcap/internal/events"
)

// registerEventRoutes streams bus events to clients over SSE.
func (s *Server) registerEventRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time capture session transitions, capture errors and device hotplug",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"ready":          models.EventStreamReady{},
		"session-state":  events.SessionStateChangedEvent{},
		"capture-error":  events.CaptureErrorEvent{},
		"device-added":   events.DeviceAddedEvent{},
		"device-removed": events.DeviceRemovedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionStateChangedEvent](s.options.Events, eventCh),
			events.SubscribeToChannel[events.CaptureErrorEvent](s.options.Events, eventCh),
			events.SubscribeToChannel[events.DeviceAddedEvent](s.options.Events, eventCh),
			events.SubscribeToChannel[events.DeviceRemovedEvent](s.options.Events, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(models.EventStreamReady{
			Message:   "event stream connected",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					s.logger.Debug("Event stream closed", "error", err)
					return
				}
			}
		}
	})
}
