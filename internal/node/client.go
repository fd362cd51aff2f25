package node

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Handle is the opaque transfer identifier issued by the node when a
// transfer is created. It keys every other record about one upload.
type Handle string

// Status is a point-in-time snapshot of chunk propagation for one transfer.
// Split is the total chunk count; the remaining counters are bounded by it
// but are not guaranteed to advance in any particular order relative to
// each other. Split == 0 means chunking has not been computed yet.
type Status struct {
	Split  int64 `json:"split"`
	Seen   int64 `json:"seen"`
	Stored int64 `json:"stored"`
	Sent   int64 `json:"sent"`
	Synced int64 `json:"synced"`
}

// TransferItem is one entry of the node's transfer listing.
type TransferItem struct {
	ID Handle `json:"id"`
	Status
}

// UploadOpts carries the per-upload parameters of the payload call.
type UploadOpts struct {
	Name         string
	AllocationID string
	Transfer     Handle
	Collection   bool
	EntryPoint   string
}

const (
	headerAllocationID = "X-Allocation-Id"
	headerTransferID   = "X-Transfer-Id"
	headerCollection   = "X-Collection"
	headerEntryPoint   = "X-Entry-Point"

	listPageSize = 100
)

// Client talks to the node's local HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the node API at baseURL,
// e.g. "http://127.0.0.1:6710".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			// Applies to create/status/list calls. The payload request is
			// issued without a deadline, see UploadPayload.
			Timeout: 30 * time.Second,
		},
	}
}

// CreateTransfer asks the node to start tracking a new transfer and
// returns its handle.
func (c *Client) CreateTransfer(ctx context.Context) (Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	var body struct {
		ID Handle `json:"id"`
	}
	if err := c.do(req, &body); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", fmt.Errorf("node returned an empty transfer id")
	}
	return body.ID, nil
}

// FetchStatus returns the current propagation counters for a transfer.
func (c *Client) FetchStatus(ctx context.Context, handle Handle) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transfers/"+url.PathEscape(string(handle)), nil)
	if err != nil {
		return Status{}, fmt.Errorf("build request: %w", err)
	}

	var status Status
	if err := c.do(req, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// ListTransfers pages through the node's transfer listing until a short
// page is returned and yields all entries, in the node's order (newest
// first).
func (c *Client) ListTransfers(ctx context.Context) ([]TransferItem, error) {
	var all []TransferItem
	for offset := 0; ; offset += listPageSize {
		u := fmt.Sprintf("%s/transfers?limit=%d&offset=%d", c.baseURL, listPageSize, offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		var page struct {
			Transfers []TransferItem `json:"transfers"`
		}
		if err := c.do(req, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Transfers...)
		if len(page.Transfers) < listPageSize {
			return all, nil
		}
	}
}

// UploadPayload sends the payload bytes to the node in one synchronous
// request and returns the resulting content address. The request carries
// no deadline of its own: large payloads take as long as they take, and
// incremental progress is observed by polling FetchStatus in parallel.
func (c *Client) UploadPayload(ctx context.Context, r io.Reader, size int64, opts UploadOpts) (string, error) {
	u := c.baseURL + "/payload?name=" + url.QueryEscape(opts.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, r)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(headerAllocationID, opts.AllocationID)
	req.Header.Set(headerTransferID, string(opts.Transfer))
	if opts.Collection {
		req.Header.Set(headerCollection, strconv.FormatBool(true))
		if opts.EntryPoint != "" {
			req.Header.Set(headerEntryPoint, opts.EntryPoint)
		}
	}

	var body struct {
		Address string `json:"address"`
	}
	if err := c.doWith(c.uploadClient(), req, &body); err != nil {
		return "", err
	}
	if body.Address == "" {
		return "", fmt.Errorf("node returned an empty content address")
	}
	return body.Address, nil
}

func (c *Client) uploadClient() *http.Client {
	cl := *c.http
	cl.Timeout = 0
	return &cl
}

func (c *Client) do(req *http.Request, out any) error {
	return c.doWith(c.http, req, out)
}

func (c *Client) doWith(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode node response: %w", err)
	}
	return nil
}
