package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dinedesk/dinedesk/internal/models"
	"github.com/dinedesk/dinedesk/pkg/circuitbreaker"
	"github.com/dinedesk/dinedesk/pkg/errors"
	"github.com/dinedesk/dinedesk/pkg/logger"
	"github.com/dinedesk/dinedesk/pkg/retry"
)

// NotifierClient delivers order events to a downstream notification webhook
// (for example a printer bridge or an SMS gateway). Deliveries are retried
// with backoff and gated by a circuit breaker so a dead webhook does not
// pile up blocked calls.
type NotifierClient struct {
	webhookURL  string
	httpClient  *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	retryConfig *retry.RetryConfig
	logger      logger.Logger
}

// NewNotifierClient creates a new NotifierClient. An empty webhookURL
// disables delivery; events are logged and dropped.
func NewNotifierClient(webhookURL string, logger logger.Logger) *NotifierClient {
	httpClient := &http.Client{
		Timeout: 5 * time.Second,
	}

	retryConfig := &retry.RetryConfig{
		MaxAttempts: 3,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      1.5,
			JitterFactor:    0.2,
		},
		Logger: logger,
		RetryableErrors: []error{
			errors.ErrTimeout,
			errors.ErrTemporaryFailure,
			errors.ErrServiceUnavailable,
		},
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 2,
	})

	return &NotifierClient{
		webhookURL:  webhookURL,
		httpClient:  httpClient,
		breaker:     breaker,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

// Notify posts an order event to the webhook. Failures after retries open
// the breaker; while the breaker is open, calls fail fast without touching
// the network.
func (c *NotifierClient) Notify(ctx context.Context, event *models.OrderEvent) error {
	if c.webhookURL == "" {
		c.logger.Debug("Notifier webhook not configured, dropping event",
			"eventType", event.Type, "orderID", event.OrderID)
		return nil
	}

	if !c.breaker.Allow() {
		return errors.NewTemporaryError("notifier circuit open")
	}

	retryFunc := func() error {
		body, err := json.Marshal(event)

		if err != nil {
			return errors.NewInternalError(fmt.Sprintf("failed to marshal notification: %v", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(body))

		if err != nil {
			return errors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return errors.NewTimeoutError("notification request timed out")
			}
			return errors.NewTemporaryError(fmt.Sprintf("failed to send notification: %v", err))
		}
		defer resp.Body.Close()

		// Drain so the connection can be reused.
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return errors.NewInternalError(fmt.Sprintf("failed to read response body: %v", err))
		}

		if resp.StatusCode >= 400 {
			if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout {
				return errors.NewTimeoutError("notification request timed out")
			}

			if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusInternalServerError {
				return errors.NewTemporaryError(fmt.Sprintf("notifier webhook error: %d", resp.StatusCode))
			}

			return errors.NewInternalError(fmt.Sprintf("notifier webhook rejected event: %d", resp.StatusCode))
		}

		return nil
	}

	err := retry.Retry(ctx, retryFunc, c.retryConfig)

	if err != nil {
		c.breaker.Failure()
		c.logger.Error("Failed to deliver notification after retries",
			"error", err,
			"eventType", event.Type,
			"orderID", event.OrderID)
		return err
	}

	c.breaker.Success()
	return nil
}

// CircuitMetrics exposes the breaker state for the admin API.
func (c *NotifierClient) CircuitMetrics() map[string]interface{} {
	return c.breaker.GetMetrics()
}

// ResetCircuit forces the breaker back to closed.
func (c *NotifierClient) ResetCircuit() {
	c.breaker.Reset()
}
