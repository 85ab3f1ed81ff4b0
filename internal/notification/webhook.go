// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// WebhookChannel posts notices as JSON to a URL
type WebhookChannel struct {
	url        string
	retry      WebhookRetryConfig
	logger     *logrus.Entry
	httpClient *http.Client
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Notice    *models.Notice `json:"notice"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Type      string         `json:"type"`
	Version   string         `json:"version"`
}

// WebhookRetryConfig defines retry configuration for webhooks
type WebhookRetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
}

// NewWebhookChannel creates a webhook channel for url
func NewWebhookChannel(url string, cfg *NotificationManagerConfig) *WebhookChannel {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &WebhookChannel{
		url: url,
		retry: WebhookRetryConfig{
			MaxAttempts: attempts,
			BaseDelay:   cfg.RetryDelay,
			MaxDelay:    30 * time.Second,
		},
		logger: utils.Component("webhook").WithField("url", url),
		httpClient: &http.Client{
			Timeout: cfg.NotificationTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

func (wc *WebhookChannel) Name() string {
	return string(models.NotificationTypeWebhook)
}

// Send posts notice, retrying with exponential backoff on failure.
func (wc *WebhookChannel) Send(ctx context.Context, notice *models.Notice) error {
	body, err := json.Marshal(&WebhookPayload{
		Notice:    notice,
		Timestamp: time.Now(),
		Source:    "stakebet",
		Type:      "transaction_notice",
		Version:   "1.0",
	})
	if err != nil {
		return utils.WrapError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err)
	}

	var lastErr error
	for attempt := 1; attempt <= wc.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := wc.retryDelay(attempt)
			wc.logger.WithFields(logrus.Fields{
				"attempt":     attempt,
				"retry_delay": delay.String(),
			}).Warn("Retrying webhook")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		status, err := wc.post(ctx, body)
		wc.logger.WithFields(logrus.Fields{
			"status_code": status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Webhook attempt finished")
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (wc *WebhookChannel) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.url, bytes.NewReader(body))
	if err != nil {
		return 0, utils.WrapError(utils.ErrCodeInternal, "Failed to create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "StakeBet/1.0")
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := wc.httpClient.Do(req)
	if err != nil {
		return 0, utils.WrapError(utils.ErrCodeConnection, "Failed to send webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return resp.StatusCode, utils.NewAppError(utils.ErrCodeConnection, "Webhook returned non-success status",
		fmt.Sprintf("status: %d, body: %s", resp.StatusCode, snippet))
}

// retryDelay doubles the base delay per attempt, capped at MaxDelay.
func (wc *WebhookChannel) retryDelay(attempt int) time.Duration {
	delay := time.Duration(int64(wc.retry.BaseDelay) << uint(attempt-2))
	if delay > wc.retry.MaxDelay {
		delay = wc.retry.MaxDelay
	}
	return delay
}
