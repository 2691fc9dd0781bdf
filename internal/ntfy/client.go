// Package ntfy performs the outbound publish against the relay.
//
// Delivery is single-shot: no retries, ever. A retried send could reach the
// relay after a newer edit for the same sequence token and roll the
// notification backwards.
package ntfy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/teh-hippo/tiny-ntfy-mcp/internal/config"
	logx "github.com/teh-hippo/tiny-ntfy-mcp/pkg/logx"
)

const userAgent = "tiny-ntfy-mcp/0.1.0"

// ErrDeliveryFailed marks any transport error, timeout or non-2xx response.
var ErrDeliveryFailed = errors.New("ntfy: delivery failed")

// Message is a fully-formed outbound notification.
type Message struct {
	// Topic overrides the configured topic when non-empty.
	Topic   string
	Body    string
	Headers map[string]string
}

// Result reports a completed (or simulated) send.
type Result struct {
	DryRun     bool
	StatusCode int
}

// Client posts messages to a single relay endpoint.
// Safe for concurrent use.
type Client struct {
	cfg  *config.Snapshot
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg *config.Snapshot, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	// Per-send deadlines come from the request context; no client-wide timeout.
	return &Client{cfg: cfg, http: &http.Client{}, log: log}
}

// Send performs one publish, bounded by the configured timeout. In dry-run
// mode it records the would-be request to the log and reports synthetic
// success without any network I/O.
func (c *Client) Send(ctx context.Context, m Message) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.cfg.DryRun {
		c.logDryRun(m)
		return Result{DryRun: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint(m.Topic), strings.NewReader(m.Body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	for k, v := range m.Headers {
		// Never allow callers to smuggle an Authorization header.
		if http.CanonicalHeaderKey(k) == "Authorization" {
			continue
		}
		req.Header.Set(k, headerValue(v))
	}
	if auth := c.authHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	// Drain a little so the request completes; the body is not needed.
	_, _ = io.CopyN(io.Discard, resp.Body, 64)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{StatusCode: resp.StatusCode}, fmt.Errorf("%w: unexpected status %s", ErrDeliveryFailed, resp.Status)
	}
	return Result{StatusCode: resp.StatusCode}, nil
}

func (c *Client) authHeader() string {
	if c.cfg.Token != "" {
		return "Bearer " + c.cfg.Token
	}
	if c.cfg.Username != "" && c.cfg.Password != "" {
		raw := c.cfg.Username + ":" + c.cfg.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
	}
	return ""
}

func (c *Client) logDryRun(m Message) {
	topic := m.Topic
	if topic == "" {
		topic = c.cfg.Topic
	}
	names := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	c.log.Info("[dry-run] publish",
		logx.String("url", c.cfg.URL),
		logx.String("topic", config.Redact(topic)),
		logx.String("title", m.Headers["X-Title"]),
		logx.Int("chars", len(m.Body)),
		logx.String("headers", strings.Join(names, ",")),
	)
}
