// Package events fans user lifecycle events out to registered webhook
// subscribers. Delivery is asynchronous with respect to the request path
// and never surfaces failures to the caller.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/token"
)

const (
	deliveryTimeout = 10 * time.Second
	maxAttempts     = 3
	retryBackoff    = time.Second
)

// Emitter delivers events to subscribers opted in to them.
type Emitter struct {
	subscribers model.EventSubscriberStore
	issuer      string
	client      *http.Client
	logger      *logger.Logger
	inflight    sync.WaitGroup
}

func NewEmitter(subscribers model.EventSubscriberStore, issuer string, logger *logger.Logger) *Emitter {
	return &Emitter{
		subscribers: subscribers,
		issuer:      issuer,
		client:      &http.Client{Timeout: deliveryTimeout},
		logger:      logger,
	}
}

// Emit returns immediately; delivery runs detached from the caller's
// request so a slow or failing subscriber never holds the response.
// Retries outlive the request's own context.
func (e *Emitter) Emit(ctx context.Context, event model.EventName, payload map[string]any) {
	ctx = context.WithoutCancel(ctx)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.dispatch(ctx, event, payload)
	}()
}

// Wait blocks until every in-flight delivery finishes. Called at shutdown.
func (e *Emitter) Wait() {
	e.inflight.Wait()
}

// dispatch signs and posts the event to every opted-in subscriber
// concurrently, retrying each up to three times with fixed backoff. Errors
// are logged and swallowed.
func (e *Emitter) dispatch(ctx context.Context, event model.EventName, payload map[string]any) {
	subs, err := e.subscribers.ListForEvent(ctx, event)
	if err != nil {
		e.logger.Error("Events: failed to list subscribers",
			"event", event,
			"error", err.Error())
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(map[string]any{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		e.logger.Error("Events: failed to encode event",
			"event", event,
			"error", err.Error())
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := e.deliver(ctx, sub, event, body); err != nil {
				e.logger.Error("Events: delivery failed",
					"event", event,
					"subscriber", sub.URL,
					"error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Emitter) deliver(ctx context.Context, sub model.EventSubscriber, event model.EventName, body []byte) error {
	bearer, err := token.SignWebhook(sub.SigningKey, e.issuer, string(event), body, time.Hour)
	if err != nil {
		return fmt.Errorf("failed to sign event token: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build event request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+bearer)

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("subscriber responded with status %d", resp.StatusCode)
	}

	return fmt.Errorf("delivery failed after %d attempts: %w", maxAttempts, lastErr)
}
