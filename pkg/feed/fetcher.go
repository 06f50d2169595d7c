// Package feed retrieves syndication documents with conditional GETs and
// parses them into raw items.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"newsfeed/pkg/domain"
	"newsfeed/pkg/httpclient"
)

// Status classifies the outcome of one poll.
type Status int

const (
	StatusUpdated Status = iota
	StatusUnchanged
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUpdated:
		return "updated"
	case StatusUnchanged:
		return "unchanged"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

var (
	// ErrTimeout marks a poll that ran past its deadline.
	ErrTimeout = errors.New("feed fetch timed out")
	// ErrUnexpectedStatus marks a non-2xx, non-304 response.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// DefaultMaxBodyBytes bounds how much of a response is parsed.
const DefaultMaxBodyBytes = 16 << 20

// PollResult is what a poll reports back. Failures are carried in Err, never
// returned separately.
type PollResult struct {
	Status     Status
	Items      []domain.RawItem
	Validators domain.Validators // as sent by the server on this response
	HTTPStatus int
	Err        error
}

// Doer executes HTTP requests. *httpclient.HTTPClient satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher polls sources.
type Fetcher struct {
	client       Doer
	timeout      time.Duration
	maxBodyBytes int64
}

// NewFetcher creates a fetcher. timeout bounds each poll including reading
// the body; zero means no per-poll deadline.
func NewFetcher(client Doer, timeout time.Duration) *Fetcher {
	if client == nil {
		client = httpclient.NewClient(httpclient.FeedClient, 0)
	}
	return &Fetcher{
		client:       client,
		timeout:      timeout,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Poll retrieves src using its stored validators.
func (f *Fetcher) Poll(ctx context.Context, src domain.Source) PollResult {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return failed(fmt.Errorf("build request for %s: %w", src.URL, err))
	}
	httpclient.SetConditional(req, src.ETag, src.LastModified)

	resp, err := f.client.Do(req)
	if err != nil {
		return failed(classifyNetErr(ctx, err))
	}
	defer resp.Body.Close()

	result := PollResult{
		HTTPStatus: resp.StatusCode,
		Validators: domain.Validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		result.Status = StatusUnchanged
		return result
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		result.Status = StatusFailed
		result.Err = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		return result
	}

	items, err := Parse(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		result.Status = StatusFailed
		if ctx.Err() != nil {
			result.Err = classifyNetErr(ctx, err)
		} else {
			result.Err = err
		}
		return result
	}

	result.Status = StatusUpdated
	result.Items = items
	return result
}

func failed(err error) PollResult {
	return PollResult{Status: StatusFailed, Err: err}
}

func classifyNetErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
