// Package client talks to the flow backend's REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/flowdesk/internal/logging"
	"github.com/rendis/flowdesk/pkg/schema"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
)

// TokenSource supplies the bearer token for each request. An empty token
// sends no Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client is a thin, retry-free client for the flow endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
	maxBody int64
}

// New creates a client for the API rooted at baseURL (for example
// "http://localhost:8080/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
		maxBody: defaultMaxResponseBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges credentials for a token. It does not store the token;
// see session.Manager.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "email and password are required")
	}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFlows returns the flows visible to the session.
func (c *Client) ListFlows(ctx context.Context) ([]schema.FlowSummary, error) {
	var out []schema.FlowSummary
	if err := c.do(ctx, http.MethodGet, "/flows", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFlow returns a flow with its node records.
func (c *Client) GetFlow(ctx context.Context, flowID string) (*schema.FlowDetail, error) {
	if err := requireID("flow id", flowID); err != nil {
		return nil, err
	}
	var out schema.FlowDetail
	if err := c.do(ctx, http.MethodGet, "/flows/"+url.PathEscape(flowID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateFlow replaces a flow's editable fields, diagram and node records.
func (c *Client) UpdateFlow(ctx context.Context, flowID string, req schema.UpdateFlowRequest) (*schema.FlowDetail, error) {
	if err := requireID("flow id", flowID); err != nil {
		return nil, err
	}
	if req.Nodes == nil {
		req.Nodes = []schema.FlowNode{}
	}
	var out schema.FlowDetail
	if err := c.do(ctx, http.MethodPut, "/flows/"+url.PathEscape(flowID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitReview moves a DRAFT flow to IN_REVIEW.
func (c *Client) SubmitReview(ctx context.Context, flowID string) (*schema.Flow, error) {
	return c.transition(ctx, flowID, "submit_review")
}

// Publish moves an IN_REVIEW flow to EFFECTIVE; the backend snapshots a version.
func (c *Client) Publish(ctx context.Context, flowID string) (*schema.Flow, error) {
	return c.transition(ctx, flowID, "publish")
}

func (c *Client) transition(ctx context.Context, flowID, action string) (*schema.Flow, error) {
	if err := requireID("flow id", flowID); err != nil {
		return nil, err
	}
	var out schema.Flow
	if err := c.do(ctx, http.MethodPost, "/flows/"+url.PathEscape(flowID)+"/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListVersions returns the published versions of a flow in the order served.
func (c *Client) ListVersions(ctx context.Context, flowID string) ([]schema.FlowVersion, error) {
	if err := requireID("flow id", flowID); err != nil {
		return nil, err
	}
	var out []schema.FlowVersion
	if err := c.do(ctx, http.MethodGet, "/flows/"+url.PathEscape(flowID)+"/versions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetVersion returns one version snapshot.
func (c *Client) GetVersion(ctx context.Context, flowID, versionID string) (*schema.FlowVersion, error) {
	if err := requireID("flow id", flowID); err != nil {
		return nil, err
	}
	if err := requireID("version id", versionID); err != nil {
		return nil, err
	}
	var out schema.FlowVersion
	path := "/flows/" + url.PathEscape(flowID) + "/versions/" + url.PathEscape(versionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func requireID(what, id string) error {
	if strings.TrimSpace(id) == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s is required", what)
	}
	return nil
}

// do sends one request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	target := c.baseURL + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return schema.NewError(schema.ErrCodeValidation, "encode request body").WithCause(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &TransportError{Method: method, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logging.WithRequestID(ctx, requestID)
	}
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "api request failed", slog.String("method", method), slog.String("path", path), slog.String("error", err.Error()))
		return &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	contentType := resp.Header.Get("Content-Type")
	fail := func(err error) error {
		return &TransportError{Method: method, URL: target, StatusCode: resp.StatusCode, ContentType: contentType, Err: err}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return fail(err)
	}
	if !isJSON(contentType) {
		return fail(fmt.Errorf("unexpected content type %q", contentType))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fail(fmt.Errorf("decode envelope: %w", err))
	}
	if env.Error != nil {
		apiErr := *env.Error
		apiErr.RequestID = env.RequestID
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fail(errors.New("error status without error body"))
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fail(fmt.Errorf("decode data: %w", err))
	}
	return nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
