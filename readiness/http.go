package readiness

import (
	"context"
	"fmt"
	"resty.dev/v3"
	"time"
)

// HTTP is ready once URL answers with a 2xx status.
type HTTP struct {
	URL      string
	Timeout  time.Duration
	Interval time.Duration
}

func (h HTTP) String() string { return fmt.Sprintf("HTTP{%s}", h.URL) }

func (h HTTP) Wait(ctx context.Context) error {
	client := resty.New().SetTimeout(time.Second)
	defer func(client *resty.Client) {
		_ = client.Close()
	}(client)

	return poll(ctx, h.Timeout, h.Interval, func(ctx context.Context) bool {
		resp, err := client.R().SetContext(ctx).Get(h.URL)
		return err == nil && resp.IsSuccess()
	}, h.String())
}
