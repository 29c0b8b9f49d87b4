package event

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mattjoyce/hookgate/internal/payload"
)

//go:generate mockgen -destination=mocks/mock_handler.go -package=mocks github.com/mattjoyce/hookgate/internal/event Handler

// Handler consumes a decoded webhook payload. Its error is only reported
// through logs and metrics; the sender has already been answered.
type Handler interface {
	Handle(ctx context.Context, p *payload.Payload) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, p *payload.Payload) error

func (f HandlerFunc) Handle(ctx context.Context, p *payload.Payload) error {
	return f(ctx, p)
}

var (
	ErrDuplicateHandler = errors.New("handler already registered")
	ErrNilHandler       = errors.New("handler is nil")
	ErrBuilderSealed    = errors.New("registry already built")
)

// Builder collects handler registrations. The first registration error is
// kept and returned by Build, so calls can be chained.
type Builder struct {
	handlers map[Type]Handler
	err      error
	sealed   bool
}

func NewBuilder() *Builder {
	return &Builder{handlers: make(map[Type]Handler)}
}

// On registers h for t. A second registration for the same type is an error.
func (b *Builder) On(t Type, h Handler) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case b.sealed:
		b.err = ErrBuilderSealed
	case h == nil:
		b.err = fmt.Errorf("event %q: %w", t, ErrNilHandler)
	default:
		if _, err := ParseType(string(t)); err != nil {
			b.err = err
			return b
		}
		if _, exists := b.handlers[t]; exists {
			b.err = fmt.Errorf("event %q: %w", t, ErrDuplicateHandler)
			return b
		}
		b.handlers[t] = h
	}
	return b
}

// OnFunc is On for plain functions.
func (b *Builder) OnFunc(t Type, fn func(ctx context.Context, p *payload.Payload) error) *Builder {
	if fn == nil {
		return b.On(t, nil)
	}
	return b.On(t, HandlerFunc(fn))
}

// Build seals the builder and returns the immutable registry.
func (b *Builder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.sealed {
		return nil, ErrBuilderSealed
	}
	b.sealed = true

	handlers := make(map[Type]Handler, len(b.handlers))
	for t, h := range b.handlers {
		handlers[t] = h
	}
	b.handlers = nil
	return &Registry{handlers: handlers}, nil
}

// Registry is a read-only mapping from event type to handler. It is safe
// for concurrent use without locking.
type Registry struct {
	handlers map[Type]Handler
}

func (r *Registry) Lookup(t Type) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns the registered event types in sorted order.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int { return len(r.handlers) }
