// Package jsonbin talks to the JSONBin v3 hosted document store.
//
// A bin is an opaque JSON blob. It is created once, then read and overwritten
// wholesale; the service has no partial updates and no versioning beyond the
// store's own "latest" pointer.
package jsonbin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	simplejson "github.com/bitly/go-simplejson"
)

const DefaultBaseURL = "https://api.jsonbin.io/v3"

type Client struct {
	baseURL   string
	accessKey string
	client    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func NewClient(baseURL, accessKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is returned for any non-2xx answer from the store.
type APIError struct {
	Op         string
	StatusCode int
	Status     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("failed to %s bin: %s", e.Op, e.Status)
}

// CreateBin stores data in a new bin and returns its id.
func (c *Client) CreateBin(ctx context.Context, data any) (string, error) {
	body, err := c.do(ctx, "create", http.MethodPost, c.baseURL+"/b", data)
	if err != nil {
		return "", err
	}

	js, err := simplejson.NewJson(body)
	if err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	id, err := js.GetPath("metadata", "id").String()
	if err != nil || id == "" {
		return "", fmt.Errorf("create response has no metadata.id")
	}
	return id, nil
}

// FetchBin decodes the latest record of the bin into out.
func (c *Client) FetchBin(ctx context.Context, binID string, out any) error {
	body, err := c.do(ctx, "fetch", http.MethodGet, c.baseURL+"/b/"+binID+"/latest", nil)
	if err != nil {
		return err
	}

	js, err := simplejson.NewJson(body)
	if err != nil {
		return fmt.Errorf("decode fetch response: %w", err)
	}
	record, ok := js.CheckGet("record")
	if !ok {
		return fmt.Errorf("fetch response for bin %s has no record", binID)
	}
	raw, err := record.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// UpdateBin overwrites the whole bin with data.
func (c *Client) UpdateBin(ctx context.Context, binID string, data any) error {
	_, err := c.do(ctx, "update", http.MethodPut, c.baseURL+"/b/"+binID, data)
	return err
}

func (c *Client) do(ctx context.Context, op, method, url string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Access-Key", c.accessKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s bin: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return body, nil
}
