// Package gateway is a typed client for the festival backend and the text classifier.
// Every payload coming back is mapped into app/models in normalize.go.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	defaultBaseURL       = "http://127.0.0.1:8080"
	defaultClassifierURL = "http://127.0.0.1:8001"
	defaultTimeout       = 5 * time.Second
	maxErrBody           = 4096
)

// Client calls the backend REST API and the classifier service
type Client struct {
	BaseURL       string
	ClassifierURL string
	HTTPClient    *http.Client
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// IsUnauthorized reports whether err is a 401/403 response from the backend
func IsUnauthorized(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
	}
	return false
}

// IsNotFound reports whether err is a 404 response
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// NewClient makes a client with defaults for empty urls and zero timeout
func NewClient(baseURL, classifierURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if classifierURL == "" {
		classifierURL = defaultClassifierURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		ClassifierURL: strings.TrimSuffix(classifierURL, "/"),
		HTTPClient:    &http.Client{Timeout: timeout},
	}
}

// request describes a single call
type request struct {
	base   string
	method string
	path   string
	query  url.Values
	body   interface{}
}

func (c *Client) api(method, path string) request {
	return request{base: c.BaseURL, method: method, path: path}
}

// do sends req and decodes the response into out, out may be nil
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	u := strings.TrimSuffix(req.base, "/") + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return errors.Wrapf(err, "can't marshal %s %s", req.method, req.path)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return errors.Wrapf(err, "can't make request %s %s", req.method, req.path)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", req.method, req.path)
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return &StatusError{Method: req.method, Path: req.path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		_, _ = io.Copy(ioutil.Discard, resp.Body)
		return nil
	}
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "can't read response of %s %s", req.method, req.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "can't decode response of %s %s", req.method, req.path)
	}
	return nil
}

func idPath(format string, ids ...int64) string {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf(format, args...)
}
