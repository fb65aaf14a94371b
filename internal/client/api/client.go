// Package api is the REST client of the reconciliation server. Status codes
// come back as the shared error taxonomy: 400 → common.ErrInvalidRequest,
// 404 → common.ErrNotFound, 409 → common.ErrConflict. Anything that did not
// produce an answer from the server, including 5xx, wraps common.ErrTransport.
package api

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

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/models"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL (e.g. "http://127.0.0.1:3000").
// timeout bounds each request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func contactPath(id string, suffix string) string {
	return "/contacts/" + url.PathEscape(id) + suffix
}

// doRequest performs an HTTP request with a JSON body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", common.ErrTransport, method, path, err)
	}
	return resp, nil
}

// mapStatus turns a non-2xx response into an error from the taxonomy.
func mapStatus(resp *http.Response) error {
	var body protocol.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", common.ErrInvalidRequest, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", common.ErrConflict, msg)
	default:
		return fmt.Errorf("%w: status=%d, %s", common.ErrTransport, resp.StatusCode, msg)
	}
}

// decodeResponse decodes the JSON response into target.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapStatus(resp)
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", common.ErrTransport, err)
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, target)
}

// CreateContact posts a new record. 409 means the server already has the id.
func (c *Client) CreateContact(ctx context.Context, req protocol.CreateContactRequest) (*models.Contact, error) {
	var rec protocol.ContactRecord
	if err := c.call(ctx, http.MethodPost, "/contacts", req, &rec); err != nil {
		return nil, err
	}
	return rec.Contact(), nil
}

// UpdateContact patches a record. The server answers with the record it
// holds afterwards, whether or not the update won.
func (c *Client) UpdateContact(ctx context.Context, id string, req protocol.UpdateContactRequest) (*models.Contact, error) {
	var rec protocol.ContactRecord
	if err := c.call(ctx, http.MethodPatch, contactPath(id, ""), req, &rec); err != nil {
		return nil, err
	}
	return rec.Contact(), nil
}

// GetContact fetches the record the server holds for id, tombstones
// included.
func (c *Client) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	var rec protocol.ContactRecord
	if err := c.call(ctx, http.MethodGet, contactPath(id, ""), nil, &rec); err != nil {
		return nil, err
	}
	return rec.Contact(), nil
}

func (c *Client) DeleteContact(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, contactPath(id, ""), nil, nil)
}

// Ack confirms that a server-originated change was applied locally.
func (c *Client) Ack(ctx context.Context, id string, kind protocol.AckKind) error {
	return c.call(ctx, http.MethodPost, contactPath(id, "/ack"), protocol.AckRequest{Type: string(kind)}, nil)
}

// ListPending fetches the server backlog.
func (c *Client) ListPending(ctx context.Context) ([]*models.Contact, error) {
	var recs []protocol.ContactRecord
	if err := c.call(ctx, http.MethodGet, "/contacts/pending", nil, &recs); err != nil {
		return nil, err
	}
	out := make([]*models.Contact, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Contact())
	}
	return out, nil
}

// Health reports server liveness and its connected client count.
func (c *Client) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	var h protocol.HealthResponse
	if err := c.call(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
