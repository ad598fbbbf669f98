// Package transport issues the single batched poll request per cycle. It
// applies a hard timeout and classifies failures, but never retries: retry
// is the scheduler's concern via the next scheduled cycle.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/duetlabs/pairsync/pkg/snapshot"
)

const (
	// FetchTimeout is the hard cap on one poll request.
	FetchTimeout = 10 * time.Second

	statePath = "/api/sync/state"
)

var (
	// ErrTimeout means the fetch exceeded FetchTimeout. Recovered by
	// scheduler backoff, never surfaced to UI directly.
	ErrTimeout = errors.New("transport: fetch timed out")
	// ErrHTTP is any non-timeout network or HTTP failure. Same recovery
	// path as ErrTimeout.
	ErrHTTP = errors.New("transport: request failed")
)

// Client fetches the partner-state snapshot from the sync endpoint.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	token   string
	timeout time.Duration
}

// NewClient builds a transport client. token is the opaque caller identity
// sent as a bearer credential; proxy is optional.
func NewClient(baseURL, token, proxy string) (*Client, error) {
	rc := retryablehttp.NewClient()
	rc.Logger = log.New(io.Discard, "", 0)
	// The scheduler owns the retry policy; one request per cycle.
	rc.RetryMax = 0
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		return false, err
	}
	rc.HTTPClient.Timeout = FetchTimeout

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		rc.HTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		http:    rc,
		baseURL: baseURL,
		token:   token,
		timeout: FetchTimeout,
	}, nil
}

// Fetch performs one batched poll request and returns the snapshot. The
// response is a JSON object whose top-level keys are exactly the resource
// keys currently relevant to the caller, plus a "serverTime" timestamp.
// Absence of a key means "no data for that resource", not an error.
func (c *Client) Fetch(ctx context.Context) (*snapshot.PollSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+statePath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTP, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrHTTP, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrHTTP, err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrHTTP, res.StatusCode)
	}

	return parseSnapshot(body, time.Now().UTC())
}

// parseSnapshot decodes the poll response, preserving the server's key order.
func parseSnapshot(body []byte, fetchedAt time.Time) (*snapshot.PollSnapshot, error) {
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrHTTP)
	}

	var serverTime time.Time
	if st := root.Get("serverTime"); st.Exists() {
		serverTime, _ = time.Parse(time.RFC3339, st.Str)
	}

	var pairs []snapshot.Pair
	root.ForEach(func(key, value gjson.Result) bool {
		if key.Str == "serverTime" {
			return true
		}
		pairs = append(pairs, snapshot.Pair{Key: key.Str, Value: snapshot.Resource(value.Raw)})
		return true
	})

	return snapshot.New(fetchedAt, serverTime, pairs), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	return false
}
