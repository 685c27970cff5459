package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iliyamo/termin-manager/internal/model"
)

// HTTPClient talks to the reference backend (cmd/server) over its REST API.
// Authentication is a bearer access token issued by the backend's auth
// endpoints; token refresh is the caller's concern.
type HTTPClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewHTTPClient builds a client for the given base URL and access token.
// The underlying transport gets a conservative timeout so a stuck remote
// call cannot wedge a sync flush forever.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

var _ Client = (*HTTPClient)(nil)

// apiError is the {"error": "..."} body the backend returns on failure.
type apiError struct {
	Error string `json:"error"`
}

// do runs one JSON request/response cycle. A nil out discards the body.
// notFoundOK turns a 404 into (false, nil) so callers can model "row
// absent" without sentinel errors.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any, notFoundOK bool) (bool, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return false, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return false, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && notFoundOK {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return false, fmt.Errorf("remote: %s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return false, fmt.Errorf("remote: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("remote: decode %s %s: %w", method, path, err)
		}
	}
	return true, nil
}

func (c *HTTPClient) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if _, err := c.do(ctx, http.MethodGet, "/v1/me", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Memberships(ctx context.Context) ([]model.Org, error) {
	var out struct {
		Memberships []model.Org `json:"memberships"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/v1/memberships", nil, &out, false); err != nil {
		return nil, err
	}
	return out.Memberships, nil
}

func (c *HTTPClient) FetchLatestState(ctx context.Context, orgID string) (*StateRecord, error) {
	var out StateRecord
	found, err := c.do(ctx, http.MethodGet, "/v1/orgs/"+url.PathEscape(orgID)+"/state", nil, &out, true)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &out, nil
}

func (c *HTTPClient) UpsertState(ctx context.Context, orgID string, s model.AppState) (time.Time, error) {
	in := struct {
		Data model.AppState `json:"data"`
	}{Data: s}
	var out struct {
		UpdatedAt time.Time `json:"updated_at"`
	}
	if _, err := c.do(ctx, http.MethodPut, "/v1/orgs/"+url.PathEscape(orgID)+"/state", in, &out, false); err != nil {
		return time.Time{}, err
	}
	return out.UpdatedAt, nil
}

func (c *HTTPClient) InsertBackup(ctx context.Context, orgID string, s model.AppState) error {
	in := struct {
		Snapshot model.AppState `json:"snapshot"`
	}{Snapshot: s}
	_, err := c.do(ctx, http.MethodPost, "/v1/orgs/"+url.PathEscape(orgID)+"/backups", in, nil, false)
	return err
}

func (c *HTTPClient) ListBackups(ctx context.Context, orgID string, limit int) ([]BackupRecord, error) {
	path := "/v1/orgs/" + url.PathEscape(orgID) + "/backups"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Backups []BackupRecord `json:"backups"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return out.Backups, nil
}

func (c *HTTPClient) FetchBackup(ctx context.Context, id int64) (*BackupRecord, error) {
	var out BackupRecord
	found, err := c.do(ctx, http.MethodGet, "/v1/backups/"+strconv.FormatInt(id, 10), nil, &out, true)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &out, nil
}

func (c *HTTPClient) FetchBranding(ctx context.Context, orgID string) (*model.Branding, error) {
	var out model.Branding
	found, err := c.do(ctx, http.MethodGet, "/v1/orgs/"+url.PathEscape(orgID)+"/branding", nil, &out, true)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &out, nil
}

func (c *HTTPClient) UpsertBranding(ctx context.Context, orgID string, b model.Branding) (*model.Branding, error) {
	var out model.Branding
	if _, err := c.do(ctx, http.MethodPut, "/v1/orgs/"+url.PathEscape(orgID)+"/branding", b, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}
