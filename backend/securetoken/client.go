// Package securetoken refreshes access tokens through the secure token
// service using the OAuth2 refresh_token grant.
package securetoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-client/backend"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production token endpoint.
const DefaultBaseURL = "https://securetoken.googleapis.com/v1/token"

var _ backend.TokenRefresher = (*Client)(nil)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the token endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenURL returns the endpoint for cfg, routed through the emulator when
// one is configured.
func (c *Client) TokenURL(cfg backend.RequestConfig) string {
	base := c.baseURL
	if cfg.EmulatorHost != "" {
		base = fmt.Sprintf("http://%s/%s", cfg.EmulatorHost, strings.TrimPrefix(DefaultBaseURL, "https://"))
	}
	return base + "?key=" + url.QueryEscape(cfg.APIKey)
}

// RefreshToken exchanges req.RefreshToken for a fresh access token.
func (c *Client) RefreshToken(ctx context.Context, req *backend.RefreshRequest) (*backend.RefreshResponse, error) {
	if req.RefreshToken == "" {
		return nil, backend.NewError(backend.CodeInvalidRefreshToken, "empty refresh token")
	}

	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.TokenURL(req.Config),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	// An empty access token is never valid, so the source always refreshes.
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: req.RefreshToken}).Token()
	if err != nil {
		return nil, classify(err)
	}

	resp := &backend.RefreshResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		resp.AccessToken = idToken
	}
	if uid, ok := tok.Extra("user_id").(string); ok {
		resp.UserID = uid
	}
	if tok.RefreshToken != req.RefreshToken {
		resp.RefreshToken = tok.RefreshToken
	}
	return resp, nil
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps token endpoint failures onto backend errors.
func classify(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("[securetoken RefreshToken] %w", err)
		}
		return fmt.Errorf("[securetoken RefreshToken] %w", backend.NewError(backend.CodeNetworkRequestFailed, err.Error()))
	}

	var body errorBody
	if jsonErr := json.Unmarshal(re.Body, &body); jsonErr == nil && body.Error.Message != "" {
		return fmt.Errorf("[securetoken RefreshToken] %w", backend.ParseMessage(body.Error.Message))
	}
	if re.ErrorCode != "" {
		msg := re.ErrorCode
		if re.ErrorDescription != "" {
			msg += " : " + re.ErrorDescription
		}
		return fmt.Errorf("[securetoken RefreshToken] %w", backend.ParseMessage(msg))
	}
	return fmt.Errorf("[securetoken RefreshToken] %w", backend.NewError(backend.CodeInternalError, string(re.Body)))
}
