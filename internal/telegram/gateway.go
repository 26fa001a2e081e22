package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// errNotConnected is returned by calls made before Connect succeeded.
var errNotConnected = errors.New("not connected")

// GatewayClient is a Client backed by a session gateway's HTTP API.
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	opts       Options
	connID     string
}

// NewGatewayDialer returns a Dialer that creates GatewayClients for baseURL.
func NewGatewayDialer(baseURL string) Dialer {
	return func(opts Options) (Client, error) {
		c, err := NewGatewayClient(baseURL, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// NewGatewayClient creates a client for one session. The HTTP timeout and
// proxy route are fixed here.
func NewGatewayClient(baseURL string, opts Options) (*GatewayClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("gateway URL: %w", err)
	}

	transport, err := newTransport(opts.Proxy, opts.Timeout)
	if err != nil {
		return nil, err
	}

	return &GatewayClient{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
	}, nil
}

// --- Wire types ---

type errorBody struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type connectRequest struct {
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`
	Session string `json:"session"`
}

type connectResponse struct {
	ID string `json:"id"`
}

type authorizationResponse struct {
	Authorized bool `json:"authorized"`
}

type signInRequest struct {
	Password string `json:"password"`
}

type resolveRequest struct {
	Reference string `json:"reference"`
}

type resolveResponse struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// --- Client ---

// Connect uploads the session artifact and opens a gateway connection.
func (c *GatewayClient) Connect(ctx context.Context) error {
	if c.connID != "" {
		return nil
	}

	blob, err := os.ReadFile(c.opts.SessionPath)
	if err != nil {
		return fmt.Errorf("read session artifact: %w", err)
	}

	var resp connectResponse
	err = c.do(ctx, http.MethodPost, "/v1/connections", connectRequest{
		APIID:   c.opts.APIID,
		APIHash: c.opts.APIHash,
		Session: base64.StdEncoding.EncodeToString(blob),
	}, &resp)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if resp.ID == "" {
		return fmt.Errorf("connect: gateway returned no connection id")
	}

	c.connID = resp.ID
	log.Debug().Str("connection", c.connID).Str("session", c.opts.SessionPath).Msg("Gateway connection opened")
	return nil
}

// IsAuthorized reports whether the session is signed in.
func (c *GatewayClient) IsAuthorized(ctx context.Context) (bool, error) {
	if c.connID == "" {
		return false, errNotConnected
	}
	var resp authorizationResponse
	if err := c.do(ctx, http.MethodGet, c.connPath("authorization"), nil, &resp); err != nil {
		return false, fmt.Errorf("authorization status: %w", err)
	}
	return resp.Authorized, nil
}

// SignIn submits the second-factor password.
func (c *GatewayClient) SignIn(ctx context.Context, password string) error {
	if c.connID == "" {
		return errNotConnected
	}
	if err := c.do(ctx, http.MethodPost, c.connPath("sign-in"), signInRequest{Password: password}, nil); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// ResolveEntity resolves a public entity through the authenticated session.
func (c *GatewayClient) ResolveEntity(ctx context.Context, ref string) error {
	if c.connID == "" {
		return errNotConnected
	}
	var resp resolveResponse
	if err := c.do(ctx, http.MethodPost, c.connPath("resolve"), resolveRequest{Reference: ref}, &resp); err != nil {
		return fmt.Errorf("resolve %s: %w", ref, err)
	}
	log.Debug().Str("reference", ref).Int64("entityId", resp.ID).Str("entityType", resp.Type).Msg("Entity resolved")
	return nil
}

// Disconnect closes the gateway connection.
func (c *GatewayClient) Disconnect(ctx context.Context) error {
	if c.connID == "" {
		return nil
	}
	id := c.connID
	c.connID = ""
	if err := c.do(ctx, http.MethodDelete, "/v1/connections/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	log.Debug().Str("connection", id).Msg("Gateway connection closed")
	return nil
}

func (c *GatewayClient) connPath(action string) string {
	return "/v1/connections/" + url.PathEscape(c.connID) + "/" + action
}

// --- Internal helpers ---

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// Remote errors come back as *RPCError.
func (c *GatewayClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		log.Debug().Str("method", method).Str("path", path).Dur("duration", duration).Err(err).Msg("Gateway request failed")
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Trace().Str("method", method).Str("path", path).Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Gateway response")

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if len(bytes.TrimSpace(data)) > 0 {
		var eb errorBody
		if err := json.Unmarshal(data, &eb); err == nil && eb.Error != nil {
			return &RPCError{Code: eb.Error.Code, Message: eb.Error.Message}
		}
	}

	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d (body: %s)", httpResp.StatusCode, truncate(string(data), 200))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(data), 200))
	}
	return nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
