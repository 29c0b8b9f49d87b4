package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/hookgate/internal/events"
	"github.com/mattjoyce/hookgate/internal/metrics"
	"github.com/mattjoyce/hookgate/internal/signature"
)

// ErrEmptySecret is returned by NewGate when no shared secret is configured.
var ErrEmptySecret = errors.New("webhook secret is empty")

// GateOptions carries the optional collaborators of a Gate.
type GateOptions struct {
	MaxBodySize int64
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Hub         *events.Hub
}

// Gate verifies the body signature of every request before passing it on.
type Gate struct {
	secret      []byte
	maxBodySize int64
	logger      *slog.Logger
	metrics     *metrics.Metrics
	hub         *events.Hub
}

// NewGate creates a Gate for secret. The secret is copied.
func NewGate(secret []byte, opts GateOptions) (*Gate, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gate{
		secret:      bytes.Clone(secret),
		maxBodySize: opts.MaxBodySize,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		hub:         opts.Hub,
	}, nil
}

type rawBodyKey struct{}

// RawBody returns the verified request body stored by the Gate.
func RawBody(ctx context.Context) ([]byte, bool) {
	b, ok := ctx.Value(rawBodyKey{}).([]byte)
	return b, ok
}

// Middleware installs the gate in front of next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Enforce body size limit
		body, err := io.ReadAll(io.LimitReader(r.Body, g.maxBodySize+1))
		if err != nil {
			g.reject(w, r, http.StatusBadRequest, "body_read", err)
			return
		}
		if int64(len(body)) > g.maxBodySize {
			g.reject(w, r, http.StatusRequestEntityTooLarge, "body_too_large", nil)
			return
		}

		if err := signature.Verify(g.secret, body, r.Header.Get(signature.HeaderName)); err != nil {
			status, reason := verificationStatus(err)
			g.reject(w, r, status, reason, err)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		ctx := context.WithValue(r.Context(), rawBodyKey{}, body)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func verificationStatus(err error) (int, string) {
	switch {
	case errors.Is(err, signature.ErrMissingSignature):
		return http.StatusBadRequest, "signature_missing"
	case errors.Is(err, signature.ErrMalformedSignature):
		return http.StatusBadRequest, "signature_malformed"
	default:
		return http.StatusUnauthorized, "signature_mismatch"
	}
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, status int, reason string, err error) {
	attrs := []any{
		"reason", reason,
		"status", status,
		"path", r.URL.Path,
		"delivery", r.Header.Get(DeliveryHeader),
		"request_id", middleware.GetReqID(r.Context()),
		"remote_addr", r.RemoteAddr,
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	g.logger.Warn("webhook rejected by gate", attrs...)

	if status != http.StatusRequestEntityTooLarge && reason != "body_read" {
		g.metrics.RecordVerificationFailure(reason)
	}
	g.hub.Rejected(events.Rejection{
		Delivery: r.Header.Get(DeliveryHeader),
		Reason:   reason,
		Status:   status,
	})
	w.WriteHeader(status)
}
