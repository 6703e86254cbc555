package backup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pgbak/internal/logging"
)

const (
	// notifyMaxAttempts bounds healthcheck delivery retries.
	notifyMaxAttempts = 3
	// notifyBackoffUnit scales the linear backoff: sleep attempt*unit after
	// the attempt-th failure.
	notifyBackoffUnit = 10 * time.Second
)

// HealthcheckNotifier posts run lifecycle signals to operator-supplied
// dead-man's-switch URLs. Delivery is best-effort: a healthcheck outage must
// never abort or fail a backup run, so every error is swallowed after the
// retry budget is spent.
type HealthcheckNotifier struct {
	client *http.Client
	logger *logging.Logger

	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

// NewHealthcheckNotifier creates a notifier with a bounded request timeout.
func NewHealthcheckNotifier(logger *logging.Logger) *HealthcheckNotifier {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &HealthcheckNotifier{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Notify POSTs body to url. Up to three attempts are made; after a transport
// error or non-2xx response the notifier sleeps attempt*10s and retries.
// Exhaustion is logged and swallowed. An empty url is a no-op.
func (n *HealthcheckNotifier) Notify(ctx context.Context, url, body string) {
	if url == "" {
		return
	}

	var lastErr error
	for attempt := 1; attempt <= notifyMaxAttempts; attempt++ {
		lastErr = n.post(ctx, url, body)
		n.logger.LogNotifyAttempt(url, attempt, lastErr)
		if lastErr == nil {
			return
		}
		if attempt < notifyMaxAttempts {
			n.sleep(time.Duration(attempt) * notifyBackoffUnit)
		}
	}
	n.logger.LogNotifyGiveUp(url, notifyMaxAttempts, NewNotifyError("healthcheck delivery exhausted retries", lastErr))
}

func (n *HealthcheckNotifier) post(ctx context.Context, url, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// The response body is irrelevant to the protocol; drain it so the
	// connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("healthcheck endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
