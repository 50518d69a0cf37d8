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

	"github.com/google/uuid"
)

// Endpoints owned by the backend auth surface.
const (
	loginPath  = "/api/auth/login"
	verifyPath = "/api/auth/verify"
)

// RequestOptions shape a single backend request.
type RequestOptions struct {
	Method  string
	Headers map[string]string
	Params  map[string]string

	// Body is serialized as JSON unless RawBody is set.
	Body    any
	RawBody []byte

	// SkipAuth disables credential resolution for this request.
	SkipAuth bool

	// BaseURL overrides the persisted base endpoint for this call only.
	BaseURL string
}

// Response is the normalized result of a backend call. Data holds the decoded
// JSON payload, the raw text for non-JSON bodies, or nil for empty bodies.
type Response struct {
	OK         bool
	Status     int
	StatusText string
	Data       any

	raw []byte
}

// Decode unmarshals the response body into v. It fails for empty or non-JSON
// bodies.
func (r *Response) Decode(v any) error {
	if len(r.raw) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.raw, v)
}

// APIClient wraps outbound requests to the application backend: it resolves
// the base endpoint, attaches the bearer credential, and normalizes response
// and error shapes.
type APIClient struct {
	defaultBaseURL string
	storage        Storage
	resolver       *CredentialResolver
	httpc          *http.Client
	logger         Logger
}

func NewAPIClient(defaultBaseURL string, storage Storage, resolver *CredentialResolver) *APIClient {
	return &APIClient{
		defaultBaseURL: strings.TrimRight(defaultBaseURL, "/"),
		storage:        storage,
		resolver:       resolver,
		httpc:          &http.Client{},
		logger:         defLogger{},
	}
}

func (c *APIClient) WithLogger(l Logger) *APIClient {
	if l != nil {
		c.logger = l
	}
	return c
}

func (c *APIClient) WithHTTPClient(h *http.Client) *APIClient {
	if h != nil {
		c.httpc = h
	}
	return c
}

// BaseURL returns the persisted base endpoint, falling back to the default.
func (c *APIClient) BaseURL() string {
	if c.storage != nil {
		if v, ok := c.storage.Get(StorageKeyBaseURL); ok && v != "" {
			return v
		}
	}
	return c.defaultBaseURL
}

// SetBaseURL persists a base endpoint override.
func (c *APIClient) SetBaseURL(baseURL string) {
	if baseURL == "" || c.storage == nil {
		return
	}
	c.storage.Set(StorageKeyBaseURL, baseURL)
}

// ManualToken returns the operator-supplied override token, if any.
func (c *APIClient) ManualToken() string {
	if c.storage == nil {
		return ""
	}
	v, _ := c.storage.Get(StorageKeyManualToken)
	return v
}

// SetManualToken persists an operator-supplied override token that takes
// priority over the provider token during credential resolution.
func (c *APIClient) SetManualToken(token string) {
	if token == "" || c.storage == nil {
		return
	}
	c.storage.Set(StorageKeyManualToken, token)
}

func (c *APIClient) ClearManualToken() {
	if c.storage != nil {
		c.storage.Delete(StorageKeyManualToken)
	}
}

func (c *APIClient) buildURL(base, path string, params map[string]string) (string, error) {
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := url.Parse(base + path)
	if err != nil {
		return "", err
	}

	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			if v == "" {
				continue
			}
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func methodHasBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return false
	default:
		return true
	}
}

// Request performs a backend call. Non-2xx responses fail with an error
// carrying the status, the server-supplied error/message when present, and
// the decoded payload in its metadata; the normalized Response is returned
// alongside the error for inspection.
func (c *APIClient) Request(ctx context.Context, path string, opts RequestOptions) (*Response, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	base := opts.BaseURL
	if base == "" {
		base = c.BaseURL()
	}

	target, err := c.buildURL(base, path, opts.Params)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	_, hasExplicitAuth := headers["Authorization"]
	if !opts.SkipAuth && !hasExplicitAuth && c.resolver != nil {
		for k, v := range c.resolver.Resolve(ctx) {
			headers[k] = v
		}
	}

	var body io.Reader
	if methodHasBody(method) {
		switch {
		case opts.RawBody != nil:
			body = bytes.NewReader(opts.RawBody)
		case opts.Body != nil:
			encoded, err := json.Marshal(opts.Body)
			if err != nil {
				return nil, err
			}
			if _, ok := headers["Content-Type"]; !ok {
				headers["Content-Type"] = "application/json"
			}
			body = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	c.logger.Debug("%s %s auth=%v skip=%v", method, target, req.Header.Get("Authorization") != "", opts.SkipAuth)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	result := &Response{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Data:       parseBody(raw),
		raw:        raw,
	}

	if !result.OK {
		return result, NewHTTPError(result.Status, result.StatusText, errorMessage(result), result.Data)
	}

	return result, nil
}

// parseBody decodes the payload as JSON when possible, falls back to the raw
// text, and yields nil for empty bodies.
func parseBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

func errorMessage(r *Response) string {
	if data, ok := r.Data.(map[string]any); ok {
		for _, key := range []string{"error", "message"} {
			if msg, ok := data[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("HTTP %d %s", r.Status, r.StatusText)
}

// Get issues a GET with optional query parameters.
func (c *APIClient) Get(ctx context.Context, path string, params map[string]string) (*Response, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodGet, Params: params})
}

func (c *APIClient) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodPost, Body: body})
}

func (c *APIClient) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodPut, Body: body})
}

func (c *APIClient) Delete(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, path, RequestOptions{Method: http.MethodDelete, Body: body})
}

// LoginExtra carries optional enrollment fields for the backend handshake.
type LoginExtra struct {
	PhoneNumber string
	Name        string
	FINNumber   string
}

// LoginWithIDToken posts a provider ID token to the backend login endpoint.
// The token itself is the payload, so normal credential resolution is
// bypassed and the token travels both in the body and as the bearer header.
func (c *APIClient) LoginWithIDToken(ctx context.Context, idToken string, extra *LoginExtra) (*Response, error) {
	body := map[string]any{"idToken": idToken}
	if extra != nil {
		if extra.PhoneNumber != "" {
			body["phoneNumber"] = extra.PhoneNumber
		}
		if extra.Name != "" {
			body["name"] = extra.Name
		}
		if extra.FINNumber != "" {
			body["finNumber"] = extra.FINNumber
		}
	}

	return c.Request(ctx, loginPath, RequestOptions{
		Method:   http.MethodPost,
		Headers:  map[string]string{"Authorization": "Bearer " + strings.TrimSpace(idToken)},
		Body:     body,
		SkipAuth: true,
	})
}

// VerifyResult is the payload of the backend verify endpoint.
type VerifyResult struct {
	Valid bool   `json:"valid"`
	UID   string `json:"uid,omitempty"`
}

// Verify asks the backend whether the current bearer credential is valid.
func (c *APIClient) Verify(ctx context.Context) (*VerifyResult, error) {
	resp, err := c.Request(ctx, verifyPath, RequestOptions{Method: http.MethodGet})
	if err != nil {
		// A 401 from verify is an explicit "invalid", not a transport failure.
		if status, ok := IsHTTPError(err); ok && status == http.StatusUnauthorized {
			return &VerifyResult{Valid: false}, nil
		}
		return nil, err
	}

	out := &VerifyResult{}
	if decodeErr := resp.Decode(out); decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}
