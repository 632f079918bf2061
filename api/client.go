// vxcube-go
// Copyright (c) 2026, DCSO GmbH

// Package api implements a client for the Dr.Web vxCube REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultBaseURL is the public vxCube endpoint.
const DefaultBaseURL = "https://vxcube.drweb.com/"

// DefaultVersion is the API version spoken when none is configured.
const DefaultVersion = 2.0

// Client talks to one vxCube server. All methods are safe for concurrent
// use; the client holds no per-request state.
type Client struct {
	// BaseURL including the api-<version>/ prefix, with trailing slash.
	BaseURL *url.URL
	// APIKey is sent as "Authorization: api-key <key>" on every request.
	APIKey string
	// HTTPClient used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Version of the API dialect, e.g. 2.0.
	Version float64
}

// NewClient returns a Client for the given endpoint. Versions below 2.0
// still work but are logged as deprecated.
func NewClient(apiKey, baseURL string, version float64) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == 0 {
		version = DefaultVersion
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	versioned, err := base.Parse("api-" + formatVersion(version) + "/")
	if err != nil {
		return nil, err
	}
	if version < 2.0 {
		log.Warnf("API version %v is out of date", version)
	}
	return &Client{
		BaseURL:    versioned,
		APIKey:     apiKey,
		HTTPClient: http.DefaultClient,
		Version:    version,
	}, nil
}

// formatVersion renders the API version the way the server expects in the
// URL prefix: integral versions keep one decimal place ("2.0", not "2").
func formatVersion(version float64) string {
	s := strconv.FormatFloat(version, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, contentType string) (*http.Request, error) {
	u, err := c.BaseURL.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "api-key "+c.APIKey)
	if body != nil {
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// send performs the request, retrying once on a transport error. The server
// drops idle connections after a while, so a single re-dial covers the
// common stale-session case.
func (c *Client) send(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Debugf("request to %s failed (%s), retrying once", path, err)
		c.HTTPClient.CloseIdleConnections()
		req, err = c.newRequest(ctx, method, path, body, contentType)
		if err != nil {
			return nil, err
		}
		return c.HTTPClient.Do(req)
	}
	return resp, nil
}

// do sends a request with the optional JSON-encodable payload and returns
// the raw response body, mapping non-2xx responses to APIError.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	resp, err := c.send(ctx, method, path, body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, data),
		}
	}
	return data, nil
}

// doJSON is do plus decoding of the response into out (which may be nil if
// no response body is expected).
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	data, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// download streams the response body for path into w.
func (c *Client) download(ctx context.Context, path string, payload interface{}, w io.Writer) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}
	resp, err := c.send(ctx, http.MethodGet, path, body, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, data),
		}
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Login exchanges credentials for an API key and installs it on the client.
// With newKey set the server issues a fresh key instead of returning the
// current one.
func (c *Client) Login(ctx context.Context, login, password string, newKey bool) error {
	log.Debugf("login as %s", login)
	if c.APIKey != "" {
		log.Info("logging in although an API key is already set")
	}
	payload := map[string]interface{}{
		"login":    login,
		"password": password,
	}
	if newKey {
		payload["new_key"] = true
	}
	var resp struct {
		APIKey string `json:"api_key"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "login", payload, &resp); err != nil {
		return err
	}
	if resp.APIKey == "" {
		return fmt.Errorf("vxcube: incorrect server response to login")
	}
	c.APIKey = resp.APIKey
	return nil
}

// Sessions lists the account's open sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	err := c.doJSON(ctx, http.MethodGet, "sessions", nil, &sessions)
	return sessions, err
}

// DeleteSession revokes the session with the given API key.
func (c *Client) DeleteSession(ctx context.Context, apiKey string) error {
	return c.doJSON(ctx, http.MethodDelete, "sessions/"+url.PathEscape(apiKey), nil, nil)
}

// Formats lists the file formats the sandbox can analyse.
func (c *Client) Formats(ctx context.Context) ([]Format, error) {
	var formats []Format
	err := c.doJSON(ctx, http.MethodGet, "formats", nil, &formats)
	return formats, err
}

// Platforms lists the available execution environments.
func (c *Client) Platforms(ctx context.Context) ([]Platform, error) {
	var platforms []Platform
	err := c.doJSON(ctx, http.MethodGet, "platforms", nil, &platforms)
	return platforms, err
}

// License returns the current licensing state of the account.
func (c *Client) License(ctx context.Context) (*License, error) {
	var lic License
	if err := c.doJSON(ctx, http.MethodGet, "license", nil, &lic); err != nil {
		return nil, err
	}
	return &lic, nil
}
