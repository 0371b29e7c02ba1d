package client

import (
	"log/slog"
	"net/http"

	"github.com/xraph/jobrunner/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Defaults to a client
// with a 30 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPollBackoff sets the delay schedule used by Wait between polls.
func WithPollBackoff(s backoff.Strategy) Option {
	return func(c *Client) { c.poll = s }
}
