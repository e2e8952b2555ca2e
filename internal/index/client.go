// Package index provides the client for the search index service. Schema
// registration is asynchronous on the wire; the client's transport layer
// polls such operations to completion so every method here is one blocking
// call.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/mooring-labs/searchlink/internal/telemetry"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultPollDeadline = 25 * time.Minute

	// ticketHeader carries the provision ticket on connection creation so
	// the index service can link the connection back to the signal that
	// requested it.
	ticketHeader = "Connector-Ticket"
)

// Client is the index service API client.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type clientOptions struct {
	pollInterval time.Duration
	pollDeadline time.Duration
	metrics      *telemetry.OperationMetrics
	transport    http.RoundTripper
}

// Option configures the client.
type Option func(*clientOptions)

// WithPollInterval sets the delay between operation status polls.
func WithPollInterval(interval time.Duration) Option {
	return func(o *clientOptions) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// WithPollDeadline caps the total duration of operation polling.
func WithPollDeadline(deadline time.Duration) Option {
	return func(o *clientOptions) {
		if deadline > 0 {
			o.pollDeadline = deadline
		}
	}
}

// WithOperationMetrics records poll counts and operation durations.
func WithOperationMetrics(metrics *telemetry.OperationMetrics) Option {
	return func(o *clientOptions) {
		o.metrics = metrics
	}
}

// WithTransport overrides the base transport beneath authentication.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		if rt != nil {
			o.transport = rt
		}
	}
}

// NewClient creates an index service client for the given endpoint. The
// token source supplies bearer credentials for every request, including the
// polls issued by the operation transport.
func NewClient(endpoint string, tokenSource oauth2.TokenSource, opts ...Option) (*Client, error) {
	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid index endpoint %q: %w", endpoint, err)
	}

	options := &clientOptions{
		pollInterval: defaultPollInterval,
		pollDeadline: defaultPollDeadline,
		transport:    http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(options)
	}

	base := options.transport
	if tokenSource != nil {
		base = &oauth2.Transport{Source: tokenSource, Base: base}
	}

	return &Client{
		baseURL: baseURL,
		// No client timeout: schema registration blocks for the full polling
		// sequence. The poll deadline bounds it instead.
		httpClient: &http.Client{
			Transport: newOperationTransport(base, options.pollInterval, options.pollDeadline, options.metrics),
		},
	}, nil
}

// CreateConnection provisions a connection. A non-empty ticket is forwarded
// so the index service can link the connection to the originating signal.
func (c *Client) CreateConnection(ctx context.Context, conn Connection, ticket string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/connections", conn)
	if err != nil {
		return err
	}
	if ticket != "" {
		req.Header.Set(ticketHeader, ticket)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create connection %s: %w", conn.ID, err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	return nil
}

// ListConnections returns all provisioned connections.
func (c *Client) ListConnections(ctx context.Context) ([]Connection, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/connections", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var list struct {
		Connections []Connection `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode connection list: %w", err)
	}
	return list.Connections, nil
}

// DeleteConnection removes a connection and everything indexed under it.
func (c *Client) DeleteConnection(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/connections/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete connection %s: %w", id, err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	return nil
}

// RegisterSchema registers the item schema of a connection. The index
// service provisions schemas asynchronously; this call blocks until the
// provisioning operation reaches a terminal state.
func (c *Client) RegisterSchema(ctx context.Context, connectionID string, schema Schema) error {
	path := fmt.Sprintf("/connections/%s/schema", url.PathEscape(connectionID))
	req, err := c.newRequest(ctx, http.MethodPatch, path, schema)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("register schema for connection %s: %w", connectionID, err)
	}
	defer closeBody(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return readAPIError(resp)
	}
	return nil
}

// UpsertItem creates or replaces an item in a connection.
func (c *Client) UpsertItem(ctx context.Context, connectionID string, item Item) error {
	path := fmt.Sprintf("/connections/%s/items/%s", url.PathEscape(connectionID), url.PathEscape(item.ID))
	req, err := c.newRequest(ctx, http.MethodPut, path, item)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return readAPIError(resp)
	}
	return nil
}

// AddActivities reports activities on an item.
func (c *Client) AddActivities(ctx context.Context, connectionID, itemID string, activities []Activity) error {
	if len(activities) == 0 {
		return nil
	}

	path := fmt.Sprintf("/connections/%s/items/%s/activities", url.PathEscape(connectionID), url.PathEscape(itemID))
	body := map[string][]Activity{"activities": activities}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("add activities for item %s: %w", itemID, err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return readAPIError(resp)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// readAPIError decodes an error response into an APIError. The index
// service reports errors as {"error":{"code","message"}}, but plain
// {"message"} and bare text bodies are tolerated.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if code := gjson.GetBytes(body, "error.code"); code.Exists() {
		apiErr.Code = code.String()
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		apiErr.Message = msg.String()
	} else if msg := gjson.GetBytes(body, "message"); msg.Exists() {
		apiErr.Message = msg.String()
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
