package report

import (
	"arena-harness/applog"
	"context"
	"fmt"
	"go.uber.org/zap"
	"resty.dev/v3"
	"time"
)

// Webhook posts the final report as JSON to an HTTP endpoint.
type Webhook struct {
	url        string
	httpClient *resty.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: resty.New().SetTimeout(timeout),
	}
}

func (w *Webhook) Send(ctx context.Context, r *Report) error {
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(r).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("posting report failed: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("posting report failed: %v", resp.Status())
	}

	applog.Info("Report posted", zap.String("url", w.url), zap.Int("status", resp.StatusCode()))
	return nil
}

func (w *Webhook) Close() error {
	return w.httpClient.Close()
}
