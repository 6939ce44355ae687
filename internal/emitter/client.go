package emitter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zxsharp/active-app-worker/internal/logger"
)

// Client delivers app-switch events to the collector endpoint. One attempt
// per event, bounded by the request timeout; failed events are dropped by
// the caller, never queued.
type Client struct {
	http *resty.Client
	url  string
}

// NewClient creates an emitter client for the given endpoint URL.
func NewClient(url string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "active-app-worker/1.0")

	return &Client{
		http: httpClient,
		url:  url,
	}
}

// URL returns the collector endpoint events are POSTed to.
func (c *Client) URL() string {
	return c.url
}

// Emit POSTs one event. Transport errors and non-2xx responses are both
// failures; the tracker state must not be advanced on failure.
func (c *Client) Emit(ctx context.Context, ev *Event) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ev).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("collector returned %s", resp.Status())
	}

	logger.WithComponent("emitter").Debug().
		Str("app", ev.Next.App).
		Str("id", ev.Next.ID).
		Int("status", resp.StatusCode()).
		Msg("Event delivered")
	return nil
}
