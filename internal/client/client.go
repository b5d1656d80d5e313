// Package client is a small Go client for the passvault HTTP API.
package client

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

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
)

// Client talks to one passvault server.
type Client struct {
	base *url.URL
	hc   *http.Client
}

// New returns a client for baseURL. A nil hc gets a client with a 30s timeout.
func New(baseURL string, hc *http.Client) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, hc: hc}, nil
}

// APIError is a non-2xx response. It unwraps to the matching errs sentinel.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return errs.ErrInvalidRequest
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusTooManyRequests:
		return errs.ErrRateLimited
	case http.StatusServiceUnavailable:
		return errs.ErrStoreUnavailable
	}
	return nil
}

// List returns the owner's records with plaintext passwords.
func (c *Client) List(ctx context.Context, owner model.OwnerIdentity) ([]model.CredentialRecord, error) {
	q := url.Values{"s": {owner.DisplayName}, "e": {owner.Email}}
	var out []model.CredentialRecord
	if err := c.do(ctx, http.MethodGet, "/", q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.CredentialRecord{}
	}
	return out, nil
}

// Check reports whether the owner has a record for site and username.
func (c *Client) Check(ctx context.Context, site, username string, owner model.OwnerIdentity) (uuid.UUID, bool, error) {
	q := url.Values{
		"site":            {site},
		"username":        {username},
		"userDisplayName": {owner.DisplayName},
		"userEmail":       {owner.Email},
	}
	var out struct {
		Exists bool      `json:"exists"`
		ID     uuid.UUID `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/check", q, nil, &out); err != nil {
		return uuid.Nil, false, err
	}
	return out.ID, out.Exists, nil
}

// Save stores a new record and returns its id.
func (c *Client) Save(ctx context.Context, form model.CredentialForm, owner model.OwnerIdentity) (uuid.UUID, error) {
	var out struct {
		Success bool      `json:"success"`
		Result  uuid.UUID `json:"result"`
	}
	body := model.SaveRequest{Form: form, User: owner}
	if err := c.do(ctx, http.MethodPost, "/save", nil, body, &out); err != nil {
		return uuid.Nil, err
	}
	return out.Result, nil
}

// DeleteByID removes a record; a miss is reported as errs.ErrNotFound.
func (c *Client) DeleteByID(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/delete/"+url.PathEscape(id), nil, nil, nil)
}

// DeleteLoose calls the structural-filter delete with body {id, user}.
func (c *Client) DeleteLoose(ctx context.Context, id any, user map[string]any) error {
	body := map[string]any{"id": id, "user": user}
	return c.do(ctx, http.MethodDelete, "/", nil, body, nil)
}

// Health returns nil when the server and its store are up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.base.JoinPath(path)
	if path == "/" && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.Must(uuid.NewV4()).String())

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: messageOf(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// messageOf pulls the human message out of any of the server's error bodies.
func messageOf(raw []byte) string {
	var m struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &m) != nil {
		return strings.TrimSpace(string(raw))
	}
	if m.Message != "" {
		return m.Message
	}
	return m.Error
}
