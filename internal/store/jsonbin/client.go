// Package jsonbin stores the quiz state in jsonbin.io bins.
//
// A bin is a single JSON document. It can only be read or replaced as a whole, so every mutation
// is a read-modify-write of the entire collection. The API exposes no version or compare-and-swap
// primitive: two clients writing the same bin concurrently can silently lose one of the updates.
package jsonbin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/victornm/techquiz/internal/errors"
)

const (
	DefaultBaseURL = "https://api.jsonbin.io/v3"

	headerMasterKey = "X-Master-Key"
	defaultTimeout  = 10 * time.Second
	maxErrorBody    = 512
)

type Config struct {
	BaseURL   string
	MasterKey string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

type Client struct {
	base string
	key  string
	hc   *http.Client
}

func NewClient(c Config) *Client {
	cl := &Client{
		base: c.BaseURL,
		key:  c.MasterKey,
		hc:   c.HTTPClient,
	}

	if cl.base == "" {
		cl.base = DefaultBaseURL
	}
	if cl.hc == nil {
		cl.hc = &http.Client{Timeout: defaultTimeout}
	}

	return cl
}

// Latest decodes the record of the latest version of a bin into v.
func (c *Client) Latest(ctx context.Context, bin string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/b/%s/latest", c.base, bin), nil)
	if err != nil {
		return fmt.Errorf("jsonbin: new request: %w", err)
	}

	var body struct {
		Record json.RawMessage `json:"record"`
	}
	if err := c.do(req, &body); err != nil {
		return fmt.Errorf("jsonbin: read bin %s: %w", bin, err)
	}

	if len(body.Record) == 0 {
		return nil
	}

	if err := json.Unmarshal(body.Record, v); err != nil {
		return fmt.Errorf("jsonbin: decode bin %s: %w", bin, err)
	}

	return nil
}

// Update replaces the whole content of a bin with v.
func (c *Client) Update(ctx context.Context, bin string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonbin: marshal bin %s: %w", bin, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/b/%s", c.base, bin), bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("jsonbin: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("jsonbin: update bin %s: %w", bin, err)
	}

	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set(headerMasterKey, c.key)

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.Unavailable(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Unavailable(fmt.Errorf("decode response: %w", err))
	}

	return nil
}
