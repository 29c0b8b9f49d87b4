package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mattjoyce/hookgate/internal/log"
	"github.com/mattjoyce/hookgate/internal/metrics"
	"github.com/mattjoyce/hookgate/internal/payload"
	"github.com/mattjoyce/hookgate/internal/worker"
)

var (
	ErrMissingEventHeader  = errors.New("event header missing")
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrNoHandlerRegistered = errors.New("no handler registered")
	ErrPayloadDecode       = errors.New("payload decode failed")
	ErrNotAccepting        = errors.New("dispatcher not accepting work")
)

// Stage is the step of a dispatch at which it was rejected.
type Stage string

const (
	StageHeader   Stage = "header"
	StageResolve  Stage = "resolve"
	StageDecode   Stage = "decode"
	StageSchedule Stage = "schedule"
)

// DispatchError reports why a request never reached its handler.
type DispatchError struct {
	Stage Stage
	Type  string
	Err   error
}

func (e *DispatchError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("dispatch %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("dispatch %s for %q: %v", e.Stage, e.Type, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Scheduler runs handler jobs independently of the caller.
type Scheduler interface {
	Submit(ctx context.Context, job worker.Job) error
}

// Request is a verified webhook request.
type Request struct {
	Event    string // raw X-GitHub-Event value
	Delivery string // X-GitHub-Delivery, informational only
	Body     []byte // raw body, already verified
}

// Invocation identifies a scheduled handler run.
type Invocation struct {
	ID       string
	Type     Type
	Delivery string
}

// Dispatcher routes verified requests to registered handlers.
type Dispatcher struct {
	registry  *Registry
	scheduler Scheduler
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(reg *Registry, sched Scheduler, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = log.WithComponent("dispatch")
	}
	return &Dispatcher{
		registry:  reg,
		scheduler: sched,
		logger:    logger,
		metrics:   m,
	}
}

// Dispatch resolves, decodes and schedules req. It returns as soon as the
// handler is scheduled; the handler runs with a context that is not
// cancelled when ctx is.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Invocation, error) {
	logger := log.WithEvent(d.logger, req.Event, req.Delivery)

	if req.Event == "" {
		return Invocation{}, d.reject(logger, "missing_event", &DispatchError{Stage: StageHeader, Err: ErrMissingEventHeader})
	}

	t, err := ParseType(req.Event)
	if err != nil {
		return Invocation{}, d.reject(logger, "unknown_event", &DispatchError{Stage: StageHeader, Type: req.Event, Err: err})
	}

	handler, ok := d.registry.Lookup(t)
	if !ok {
		return Invocation{}, d.reject(logger, "no_handler", &DispatchError{Stage: StageResolve, Type: req.Event, Err: ErrNoHandlerRegistered})
	}

	p, err := payload.Decode(req.Body)
	if err != nil {
		return Invocation{}, d.reject(logger, "decode_error", &DispatchError{
			Stage: StageDecode,
			Type:  req.Event,
			Err:   fmt.Errorf("%w: %w", ErrPayloadDecode, err),
		})
	}

	inv := Invocation{
		ID:       uuid.NewString(),
		Type:     t,
		Delivery: req.Delivery,
	}

	err = d.scheduler.Submit(context.WithoutCancel(ctx), worker.Job{
		ID:       inv.ID,
		Event:    string(t),
		Delivery: req.Delivery,
		Run: func(ctx context.Context) error {
			return handler.Handle(ctx, p)
		},
	})
	if err != nil {
		return Invocation{}, d.reject(logger, "not_accepting", &DispatchError{
			Stage: StageSchedule,
			Type:  req.Event,
			Err:   fmt.Errorf("%w: %w", ErrNotAccepting, err),
		})
	}

	d.metrics.RecordDispatch(string(t), "scheduled")
	logger.Info("handler scheduled",
		"invocation_id", inv.ID,
		"action", string(p.Action),
		"repository", p.RepositoryName(),
	)
	return inv, nil
}

func (d *Dispatcher) reject(logger *slog.Logger, outcome string, err *DispatchError) error {
	event := err.Type
	if outcome == "unknown_event" || event == "" {
		// Keep label cardinality bounded by sender-controlled input.
		event = "unknown"
	}
	d.metrics.RecordDispatch(event, outcome)
	logger.Warn("dispatch rejected", "stage", string(err.Stage), "outcome", outcome, "error", err.Err)
	return err
}
