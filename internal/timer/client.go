// Package timer talks to the external reminder-timer service that escalates
// missed doses to the guardian.
package timer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medtrack/internal/apperr"
	"medtrack/internal/metrics"
)

const DefaultTimeout = 10 * time.Second

// Registration is the body of POST /reminders.
type Registration struct {
	ReminderID    string `json:"reminderId"`
	MedicineName  string `json:"medicineName"`
	GuardianPhone string `json:"guardianPhone"`
	Time          string `json:"time"`
}

// TakenReport is the body of POST /reminders/{id}/taken.
type TakenReport struct {
	NewStock   int `json:"newStock"`
	PillsTaken int `json:"pillsTaken"`
}

// Service is what the tracker needs from the timer service.
type Service interface {
	Register(ctx context.Context, reg Registration) error
	Taken(ctx context.Context, reminderID string, report TakenReport) error
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "timer"),
	}
}

func (c *Client) Register(ctx context.Context, reg Registration) error {
	return c.post(ctx, "register", "/reminders", reg)
}

func (c *Client) Taken(ctx context.Context, reminderID string, report TakenReport) error {
	return c.post(ctx, "taken", "/reminders/"+url.PathEscape(reminderID)+"/taken", report)
}

func (c *Client) post(ctx context.Context, op, path string, payload any) error {
	start := time.Now()
	err := c.do(ctx, path, payload)
	metrics.TimerRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TimerRequests.WithLabelValues(op, "failure").Inc()
		appErr := apperr.NewTimerServiceError(err, op)
		c.logger.Warn("timer service request failed", appErr.LogFields()...)
		return appErr
	}
	metrics.TimerRequests.WithLabelValues(op, "success").Inc()
	return nil
}

func (c *Client) do(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var errBody struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &errBody) == nil && errBody.Message != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, errBody.Message)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

// Disabled accepts every call. It stands in when no service URL is configured.
type Disabled struct{}

func (Disabled) Register(context.Context, Registration) error { return nil }
func (Disabled) Taken(context.Context, string, TakenReport) error { return nil }
