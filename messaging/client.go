// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/bureau-dm/lib/netutil"
	"github.com/bureau-foundation/bureau-dm/lib/secret"
)

// DefaultDeviceDisplayName is sent as initial_device_display_name when the
// caller does not choose one.
const DefaultDeviceDisplayName = "bureau-dm"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver (e.g., "https://matrix.org").
	HomeserverURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is an unauthenticated Matrix client.
// It holds the homeserver URL and HTTP transport, shared across sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	// The string form is stored with the trailing slash stripped and request
	// URLs are built by concatenation, so escaped path segments reach the
	// server exactly as produced by url.PathEscape.
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must use http or https", config.HomeserverURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q has no host", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the homeserver URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a network disruption to
// force subsequent requests to establish fresh TCP connections instead
// of reusing a poisoned pooled connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Register creates a new account and returns a DirectSession for it.
//
// Registration runs the User-Interactive Authentication API: the first
// request without an auth block returns 401 with the available flows, then
// each stage of the first completable flow is submitted in turn. A flow is
// completable when every stage is m.login.dummy, or m.login.registration_token
// and a token was supplied. Returns ErrUnsupportedAuthFlow when no flow fits.
func (c *Client) Register(ctx context.Context, request RegisterRequest) (*DirectSession, error) {
	if request.Username == "" {
		return nil, fmt.Errorf("messaging: username is required for registration")
	}
	if request.Password == nil {
		return nil, fmt.Errorf("messaging: password is required for registration")
	}

	// Password is converted to string at the JSON serialization boundary.
	// The heap copy lives only for the duration of the HTTP calls.
	registerBody := func(auth map[string]any) map[string]any {
		body := map[string]any{
			"username":                    request.Username,
			"password":                    request.Password.String(),
			"initial_device_display_name": deviceDisplayName(request.DeviceDisplayName),
		}
		if auth != nil {
			body["auth"] = auth
		}
		return body
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/register", nil, registerBody(nil))
	if err == nil {
		return c.registered(body)
	}
	if !isUnauthorizedUIAA(err) {
		return nil, fmt.Errorf("messaging: registration failed: %w", err)
	}

	challenge, err := parseUIAA(body)
	if err != nil {
		return nil, err
	}
	flow, ok := chooseFlow(challenge.Flows, request.RegistrationToken != nil)
	if !ok {
		return nil, ErrUnsupportedAuthFlow
	}

	completed := make(map[string]bool, len(challenge.Completed))
	for _, stage := range challenge.Completed {
		completed[stage] = true
	}

	for _, stage := range flow.Stages {
		if completed[stage] {
			continue
		}
		auth := map[string]any{
			"type":    stage,
			"session": challenge.Session,
		}
		if stage == StageRegistrationToken {
			auth["token"] = request.RegistrationToken.String()
		}

		body, err = c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/register", nil, registerBody(auth))
		if err == nil {
			return c.registered(body)
		}
		if !isUnauthorizedUIAA(err) {
			return nil, fmt.Errorf("messaging: registration failed at stage %s: %w", stage, err)
		}

		// A 401 after a stage means either the stage was accepted and more
		// remain, or the stage was rejected. Only the completed list tells
		// the two apart.
		next, parseErr := parseUIAA(body)
		if parseErr != nil {
			return nil, parseErr
		}
		accepted := false
		for _, done := range next.Completed {
			completed[done] = true
			if done == stage {
				accepted = true
			}
		}
		if !accepted {
			return nil, fmt.Errorf("messaging: registration stage %s rejected: %w", stage, err)
		}
	}

	return nil, fmt.Errorf("messaging: registration incomplete after all stages of flow %v", flow.Stages)
}

func (c *Client) registered(body []byte) (*DirectSession, error) {
	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse register response: %w", err)
	}

	c.logger.Info("registered matrix account",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	return c.sessionFromAuth(&authResponse)
}

// Login authenticates with username and password, returning a DirectSession.
// The username may be a bare localpart or a full user ID. The password
// Buffer is read but not closed; the caller retains ownership.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer, deviceName string) (*DirectSession, error) {
	if username == "" {
		return nil, fmt.Errorf("messaging: username is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: password is required for login")
	}

	loginRequest := LoginRequest{
		Type: "m.login.password",
		Identifier: LoginIdentifier{
			Type: "m.id.user",
			User: username,
		},
		Password:                 password.String(),
		InitialDeviceDisplayName: deviceDisplayName(deviceName),
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, loginRequest)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse login response: %w", err)
	}

	c.logger.Info("logged in to matrix",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	return c.sessionFromAuth(&authResponse)
}

func (c *Client) sessionFromAuth(auth *AuthResponse) (*DirectSession, error) {
	if auth.UserID.IsZero() || auth.AccessToken == "" {
		return nil, fmt.Errorf("messaging: auth response missing user_id or access_token")
	}
	tokenBuffer, err := secret.NewFromString(auth.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      auth.UserID,
		deviceID:    auth.DeviceID,
	}, nil
}

// doRequest performs an HTTP request to the homeserver and returns the response body.
// On 2xx, returns the body. On 4xx/5xx, returns the body alongside a
// *MatrixError so UIAA callers can read the flows.
// accessToken may be nil for unauthenticated endpoints.
// query may be nil for endpoints without query parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All Matrix error responses use the same JSON shape.
	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil {
		// Non-JSON error bodies come from proxies and load balancers in
		// front of the homeserver. Keep the status so callers can classify.
		return nil, &MatrixError{
			Code:       ErrCodeUnknown,
			Message:    netutil.ErrorBody(bytes.NewReader(responseBody)),
			StatusCode: response.StatusCode,
		}
	}
	matrixErr.StatusCode = response.StatusCode

	return responseBody, &matrixErr
}

// isUnauthorizedUIAA checks if an error is a 401 from the UIAA flow.
func isUnauthorizedUIAA(err error) bool {
	matrixErr, ok := err.(*MatrixError) //nolint:errorlint // doRequest returns it unwrapped
	if !ok {
		return false
	}
	return matrixErr.StatusCode == http.StatusUnauthorized
}

// parseUIAA decodes a UIAA 401 body. The body is returned alongside the
// error by doRequest.
func parseUIAA(body []byte) (*uiaaResponse, error) {
	var response uiaaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse UIAA response: %w", err)
	}
	if response.Session == "" {
		return nil, fmt.Errorf("messaging: UIAA response missing session ID")
	}
	return &response, nil
}

// chooseFlow returns the first flow whose stages this client can complete.
func chooseFlow(flows []uiaaFlow, haveToken bool) (uiaaFlow, bool) {
	for _, flow := range flows {
		if len(flow.Stages) == 0 {
			continue
		}
		supported := true
		for _, stage := range flow.Stages {
			switch {
			case stage == StageDummy:
			case stage == StageRegistrationToken && haveToken:
			default:
				supported = false
			}
		}
		if supported {
			return flow, true
		}
	}
	return uiaaFlow{}, false
}

func deviceDisplayName(name string) string {
	if name == "" {
		return DefaultDeviceDisplayName
	}
	return name
}
