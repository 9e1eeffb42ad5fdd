package privacy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/resilience"
)

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	Client  *resilience.Client
	Logger  zerolog.Logger
}

// HTTPClient is a Manager backed by the privacy manager's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *resilience.Client
	logger  zerolog.Logger
}

// NewHTTPClient creates a client for the privacy manager at cfg.BaseURL.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	client := cfg.Client
	if client == nil {
		client = resilience.NewClient(resilience.DefaultClientConfig("privacy"))
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  cfg.Logger.With().Str("component", "privacy").Logger(),
	}
}

// DiscoverMetadata asks the privacy manager to collect the user's metadata.
func (c *HTTPClient) DiscoverMetadata(ctx context.Context, userID string) error {
	return c.call(ctx, http.MethodPost, "/v1/users/"+url.PathEscape(userID)+"/metadata", nil, nil)
}

type exportResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

// ExportUserData starts an export of the user's data.
func (c *HTTPClient) ExportUserData(ctx context.Context, userID string) (string, error) {
	var out exportResponse
	if err := c.call(ctx, http.MethodPost, "/v1/users/"+url.PathEscape(userID)+"/exports", nil, &out); err != nil {
		return "", err
	}
	return out.DownloadURL, nil
}

// DeleteUserData erases the user's data.
func (c *HTTPClient) DeleteUserData(ctx context.Context, userID string) error {
	return c.call(ctx, http.MethodDelete, "/v1/users/"+url.PathEscape(userID)+"/data", nil, nil)
}

type purgeRequest struct {
	Level      string `json:"level"`
	Path       string `json:"path"`
	InstanceID string `json:"instanceId,omitempty"`
}

// PurgeScope erases the data held in scope.
func (c *HTTPClient) PurgeScope(ctx context.Context, scope directory.Scope) error {
	body := purgeRequest{Level: scope.Level.String(), Path: scope.Path, InstanceID: scope.InstanceID}
	return c.call(ctx, http.MethodPost, "/v1/scopes/"+url.PathEscape(scope.ID)+"/purge", body, nil)
}

func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("privacy manager %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode privacy manager response: %w", err)
	}
	return nil
}

var _ Manager = (*HTTPClient)(nil)
