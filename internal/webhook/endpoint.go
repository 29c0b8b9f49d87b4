package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/hookgate/internal/event"
	"github.com/mattjoyce/hookgate/internal/events"
)

const (
	EventHeader    = "X-GitHub-Event"
	DeliveryHeader = "X-GitHub-Delivery"
)

// Dispatcher routes a verified request to its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, req event.Request) (event.Invocation, error)
}

// Endpoint is the handler mounted behind the Gate. It answers with an empty
// body as soon as the handler is scheduled.
type Endpoint struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	hub        *events.Hub
}

// NewEndpoint creates an Endpoint. hub may be nil.
func NewEndpoint(d Dispatcher, logger *slog.Logger, hub *events.Hub) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{dispatcher: d, logger: logger, hub: hub}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, ok := RawBody(r.Context())
	if !ok {
		// Only reachable if the endpoint is mounted without the gate.
		e.logger.Error("webhook endpoint reached without verification", "path", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	delivery := r.Header.Get(DeliveryHeader)
	_, err := e.dispatcher.Dispatch(r.Context(), event.Request{
		Event:    r.Header.Get(EventHeader),
		Delivery: delivery,
		Body:     body,
	})
	if err != nil {
		status := dispatchStatus(err)
		var de *event.DispatchError
		reason := "dispatch"
		if errors.As(err, &de) {
			reason = "dispatch_" + string(de.Stage)
		}
		e.hub.Rejected(events.Rejection{
			Event:    r.Header.Get(EventHeader),
			Delivery: delivery,
			Reason:   reason,
			Status:   status,
		})
		e.logger.Debug("webhook not dispatched",
			"status", status,
			"request_id", middleware.GetReqID(r.Context()),
		)
		w.WriteHeader(status)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func dispatchStatus(err error) int {
	switch {
	case errors.Is(err, event.ErrMissingEventHeader), errors.Is(err, event.ErrPayloadDecode):
		return http.StatusBadRequest
	case errors.Is(err, event.ErrUnknownEventType), errors.Is(err, event.ErrNoHandlerRegistered):
		return http.StatusNotImplemented
	case errors.Is(err, event.ErrNotAccepting):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
