// Package ophook implements the Operational Hook (C3): a higher-order
// wrapper adding retry with exponential backoff, structured logging, and
// optional lifecycle-event emission around any operation.
//
// Grounded on the teacher's internal/core/scheduler.go executeWithRetry
// (attempt loop, context-cancellation check, per-attempt backoff sleep),
// generalized from its fixed per-attempt linear delay to the spec's capped
// exponential backoff with a pluggable transient-error classifier.
package ophook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"watcherd/internal/domain"
)

// Emitter is the minimal event-emission surface the hook optionally uses;
// satisfied by *eventbus.Bus's Publish method.
type Emitter interface {
	Publish(eventName string, payload any, correlationID string)
}

// Options configures one Run invocation.
type Options struct {
	// OperationName is attached to every log line and emitted event.
	OperationName string
	// MaxAttempts caps the number of tries (>=1). Default 3.
	MaxAttempts int
	// BaseDelay is the first retry delay; subsequent delays double it.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration
	// Emitter, if non-nil, receives operation:started/completed/failed.
	Emitter Emitter
	// CorrelationID is reused across attempts; minted if empty.
	CorrelationID string
	// IsTransient classifies whether err should be retried. Defaults to
	// domain.IsTransient when nil.
	IsTransient func(error) bool
}

// Hook carries a logger shared across Run calls from one component.
type Hook struct {
	log zerolog.Logger
}

// New builds a Hook that logs through the given component logger.
func New(log zerolog.Logger) *Hook {
	return &Hook{log: log}
}

// Run executes fn with retry/backoff/logging/event-emission per Options.
// fn is retried only on errors classified transient; validation/not-found/
// duplicate/cancellation classes fail fast.
func (h *Hook) Run(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Second
	}
	isTransient := opts.IsTransient
	if isTransient == nil {
		isTransient = domain.IsTransient
	}
	correlationID := opts.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	logger := h.log.With().
		Str("operation", opts.OperationName).
		Str("correlationId", correlationID).
		Logger()

	h.emit(opts.Emitter, "operation:started", correlationID, opts.OperationName, 0, nil)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = domain.Wrap(domain.CodeCancelled, "operation cancelled", err)
			break
		}

		err := fn(ctx)
		if err == nil {
			duration := time.Since(start)
			logger.Info().Int("attempt", attempt).Dur("duration", duration).Msg("operation succeeded")
			h.emit(opts.Emitter, "operation:completed", correlationID, opts.OperationName, attempt, nil)
			return nil
		}

		lastErr = err
		if !isTransient(err) {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("operation failed (non-retriable)")
			break
		}
		if attempt == opts.MaxAttempts {
			logger.Error().Err(err).Int("attempt", attempt).Msg("operation failed (attempts exhausted)")
			break
		}

		delay := backoffDelay(opts.BaseDelay, opts.MaxDelay, attempt)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("operation failed, retrying")

		select {
		case <-ctx.Done():
			lastErr = domain.Wrap(domain.CodeCancelled, "operation cancelled during backoff", ctx.Err())
			attempt = opts.MaxAttempts
		case <-time.After(delay):
		}
	}

	h.emit(opts.Emitter, "operation:failed", correlationID, opts.OperationName, opts.MaxAttempts, lastErr)
	return lastErr
}

// backoffDelay computes base*2^(attempt-1), capped at maxDelay.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

func (h *Hook) emit(e Emitter, event, correlationID, op string, attempt int, err error) {
	if e == nil {
		return
	}
	payload := map[string]any{
		"operation": op,
		"attempt":   attempt,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	e.Publish(event, payload, correlationID)
}
