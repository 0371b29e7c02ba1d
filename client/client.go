// Package client is a Go client for the jobrunner HTTP API.
//
// Usage:
//
//	c, err := client.New("http://localhost:8080")
//
//	// Create a job and run a task in its directory.
//	st, err := c.CreateJob(ctx, "transcode", tasks.CommandTaskName, "ffmpeg", "-i", "in.mp4", "out.webm")
//
//	// Poll until the job is terminal, then release it.
//	st, err = c.Wait(ctx, st.JobID)
//	err = c.Finalize(ctx, st.JobID)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/api"
	"github.com/xraph/jobrunner/backoff"
	"github.com/xraph/jobrunner/job"
)

// Client talks to a remote jobrunner API.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	poll   backoff.Strategy
}

// Error is returned for every non-2xx response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("jobrunner/client: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known responses onto the package sentinels so callers
// can use errors.Is(err, jobrunner.ErrJobNotFound).
func (e *Error) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return jobrunner.ErrJobNotFound
	case e.StatusCode == http.StatusBadRequest && strings.HasPrefix(e.Message, "unknown task"):
		return jobrunner.ErrTaskNotRegistered
	}
	return nil
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("jobrunner/client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("jobrunner/client: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
		poll:   backoff.NewExponential(50*time.Millisecond, 2*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateJob creates a job of the given kind and submits task with args.
// The returned status is queued unless a worker already picked it up.
func (c *Client) CreateJob(ctx context.Context, kind, task string, args ...any) (*job.PublicStatus, error) {
	raw, err := job.EncodeArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("jobrunner/client: %w", err)
	}
	body, err := json.Marshal(api.CreateJobRequest{Kind: kind, Task: task, Args: raw})
	if err != nil {
		return nil, fmt.Errorf("jobrunner/client: marshal request: %w", err)
	}

	var st job.PublicStatus
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", bytes.NewReader(body), http.StatusAccepted, &st); err != nil {
		return nil, err
	}
	c.logger.Debug("job created", slog.String("job_id", st.JobID), slog.String("task", task))
	return &st, nil
}

// Status returns the public status of jobID.
func (c *Client) Status(ctx context.Context, jobID string) (*job.PublicStatus, error) {
	var st job.PublicStatus
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, http.StatusOK, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Finalize removes jobID and its directory on the server.
func (c *Client) Finalize(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/jobs/"+url.PathEscape(jobID), nil, http.StatusNoContent, nil)
}

// Wait polls jobID until it is finished or failed, or ctx is done. On
// error it returns the last status observed, which may be nil.
func (c *Client) Wait(ctx context.Context, jobID string) (*job.PublicStatus, error) {
	var last *job.PublicStatus
	for attempt := 1; ; attempt++ {
		st, err := c.Status(ctx, jobID)
		if err != nil {
			return last, err
		}
		if st.Status.Terminal() {
			return st, nil
		}
		last = st
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(c.poll.Delay(attempt)):
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, want int, out any) error {
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("jobrunner/client: %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jobrunner/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var er api.ErrorResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&er); decErr != nil || er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Message: er.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("jobrunner/client: decode response: %w", err)
	}
	return nil
}
