// Package source is the HTTP client for the collaboration platform's item
// API: delta pulls against an opaque cursor, per-item metadata, and content
// download. The orchestrator treats every returned token as opaque.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/edgelake/sheetsink/internal/config"
)

// CursorLatest asks the Source for a fresh delta cursor with zero items.
const CursorLatest = "latest"

// ErrResyncRequired signals that the delta cursor is no longer valid and a
// time-bounded resync is needed before a fresh cursor can be minted.
var ErrResyncRequired = errors.New("source: delta cursor expired, resync required")

// UnavailableError wraps connectivity and credential failures: errors that
// will recur while the Source stays unreachable.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("source unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// ListItem is the list-side metadata of one item.
type ListItem struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// ProcessFlag returns the value of the ProcessFlag field, or "".
func (li ListItem) ProcessFlag() string {
	return li.Fields["ProcessFlag"]
}

// DriveItem is the drive-side metadata of one item.
type DriveItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ParentPath string `json:"parentPath"`
	DriveID    string `json:"driveId"`
}

// Client talks to the Source API over HTTP/JSON with a bearer credential.
// 429 and 5xx responses are retried with exponential backoff, honoring
// Retry-After.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  zerolog.Logger

	maxElapsed time.Duration
}

func New(cfg config.SourceConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpc:      &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "source").Logger(),
		maxElapsed: 5 * time.Minute,
	}
}

type deltaPage struct {
	Value []struct {
		ID string `json:"id"`
	} `json:"value"`
	NextLink  string `json:"nextLink"`
	DeltaLink string `json:"deltaLink"`
}

// PullItemsDelta replays the cursor and returns the new cursor plus the ids
// of items changed since the cursor was minted, following pagination to the
// end. Passing CursorLatest yields a fresh cursor with zero items.
func (c *Client) PullItemsDelta(ctx context.Context, site, list, cursor string) (string, []string, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("token", cursor)
	}
	next := fmt.Sprintf("%s/sites/%s/lists/%s/items/delta?%s",
		c.baseURL, url.PathEscape(site), url.PathEscape(list), q.Encode())

	var ids []string
	for next != "" {
		var page deltaPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return "", nil, err
		}
		for _, v := range page.Value {
			ids = append(ids, v.ID)
		}
		if page.NextLink != "" {
			next = page.NextLink
			continue
		}
		return page.DeltaLink, ids, nil
	}
	return "", ids, nil
}

// PullItemsModifiedSince lists ids of items modified at or after the given
// instant, following pagination.
func (c *Client) PullItemsModifiedSince(ctx context.Context, site, list string, since time.Time) ([]string, error) {
	q := url.Values{}
	q.Set("modifiedSince", since.UTC().Format(time.RFC3339))
	next := fmt.Sprintf("%s/sites/%s/lists/%s/items?%s",
		c.baseURL, url.PathEscape(site), url.PathEscape(list), q.Encode())

	var ids []string
	for next != "" {
		var page deltaPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, v := range page.Value {
			ids = append(ids, v.ID)
		}
		next = page.NextLink
	}
	return ids, nil
}

// GetListItem fetches the list metadata of one item.
func (c *Client) GetListItem(ctx context.Context, site, list, item string) (ListItem, error) {
	var li ListItem
	u := fmt.Sprintf("%s/sites/%s/lists/%s/items/%s",
		c.baseURL, url.PathEscape(site), url.PathEscape(list), url.PathEscape(item))
	if err := c.getJSON(ctx, u, &li); err != nil {
		return ListItem{}, err
	}
	return li, nil
}

// GetDriveItem fetches the drive metadata of one item.
func (c *Client) GetDriveItem(ctx context.Context, site, list, item string) (DriveItem, error) {
	var di DriveItem
	u := fmt.Sprintf("%s/sites/%s/lists/%s/items/%s/driveItem",
		c.baseURL, url.PathEscape(site), url.PathEscape(list), url.PathEscape(item))
	if err := c.getJSON(ctx, u, &di); err != nil {
		return DriveItem{}, err
	}
	return di, nil
}

// Download fetches the item's content, fully buffered.
func (c *Client) Download(ctx context.Context, driveID, itemID string) ([]byte, error) {
	u := fmt.Sprintf("%s/drives/%s/items/%s/content",
		c.baseURL, url.PathEscape(driveID), url.PathEscape(itemID))

	var data []byte
	err := c.retry(ctx, func() error {
		resp, err := c.do(ctx, u)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := c.checkStatus(resp); err != nil {
			return err
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read content: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Probe performs a cheap authenticated GET against the site so the consumer
// can park messages instead of hammering a dead or misconfigured Source.
func (c *Client) Probe(ctx context.Context) error {
	u := c.baseURL + "/ping"
	resp, err := c.do(ctx, u)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode >= 500 {
		return &UnavailableError{Err: fmt.Errorf("probe returned %s", resp.Status)}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	return c.retry(ctx, func() error {
		resp, err := c.do(ctx, u)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := c.checkStatus(resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response from %s: %w", u, err))
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return c.httpc.Do(req)
}

// errorBody is the Source's error envelope. A resync demand can arrive as a
// code or as the exception marker in the message text.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusGone || isResyncBody(body) {
		return backoff.Permanent(ErrResyncRequired)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if d := retryAfter(resp); d > 0 {
			return &retryAfterError{delay: d, err: fmt.Errorf("source returned %s", resp.Status)}
		}
		return fmt.Errorf("source returned %s", resp.Status)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return backoff.Permanent(&UnavailableError{Err: fmt.Errorf("source returned %s", resp.Status)})
	}

	return backoff.Permanent(fmt.Errorf("source returned %s: %s", resp.Status, strings.TrimSpace(string(body))))
}

func isResyncBody(body []byte) bool {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return false
	}
	if strings.EqualFold(eb.Error.Code, "resyncRequired") {
		return true
	}
	return strings.Contains(eb.Error.Message, "ResyncApplyDifferences")
}

// retryAfterError is a transient failure where the Source named its own
// wait via the Retry-After header. The retry loop sleeps that long before
// letting the backoff policy schedule the next attempt.
type retryAfterError struct {
	delay time.Duration
	err   error
}

func (e *retryAfterError) Error() string { return e.err.Error() }

func (e *retryAfterError) Unwrap() error { return e.err }

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func (c *Client) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	wrapped := func() error {
		err := op()
		var ra *retryAfterError
		if errors.As(err, &ra) {
			if serr := sleepCtx(ctx, ra.delay); serr != nil {
				return backoff.Permanent(serr)
			}
			return ra.err
		}
		return err
	}
	err := backoff.Retry(wrapped, backoff.WithContext(bo, ctx))
	if err == nil {
		return nil
	}
	var ue *UnavailableError
	if errors.Is(err, ErrResyncRequired) || errors.As(err, &ue) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Retries exhausted on a transient failure: the Source is effectively
	// down from this process's point of view.
	return &UnavailableError{Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
