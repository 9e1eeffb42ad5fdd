package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/resilience"
)

// HTTPGatewayConfig configures an HTTPGateway.
type HTTPGatewayConfig struct {
	BaseURL string
	APIKey  string
	Client  *resilience.Client
	Logger  zerolog.Logger
}

// HTTPGateway posts messages to the notification service.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *resilience.Client
	logger  zerolog.Logger
}

// NewHTTPGateway creates a gateway for the notification service at cfg.BaseURL.
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	client := cfg.Client
	if client == nil {
		client = resilience.NewClient(resilience.DefaultClientConfig("notify"))
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  cfg.Logger.With().Str("component", "notify").Logger(),
	}
}

type notificationRequest struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Subject    string   `json:"subject"`
	HTML       string   `json:"html,omitempty"`
	Plain      string   `json:"plain"`
	ContextURL string   `json:"contextUrl,omitempty"`
	Channels   []string `json:"channels,omitempty"`
}

// Send delivers msg through the recipient's preferred channels.
func (g *HTTPGateway) Send(ctx context.Context, msg Message) error {
	return g.post(ctx, msg, nil)
}

// SendEmailOnly delivers msg by email.
func (g *HTTPGateway) SendEmailOnly(ctx context.Context, msg Message) error {
	return g.post(ctx, msg, []string{ChannelEmail})
}

func (g *HTTPGateway) post(ctx context.Context, msg Message, channels []string) error {
	body, err := json.Marshal(notificationRequest{
		From:       msg.From,
		To:         msg.To,
		Subject:    msg.Subject,
		HTML:       msg.HTML,
		Plain:      msg.Plain,
		ContextURL: msg.ContextURL,
		Channels:   channels,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		g.logger.Warn().Err(err).Str("to", msg.To).Msg("notification delivery failed")
		return fmt.Errorf("send notification to %s: %w", msg.To, err)
	}
	resp.Body.Close()

	g.logger.Debug().Str("to", msg.To).Strs("channels", channels).Msg("notification sent")
	return nil
}

var _ Gateway = (*HTTPGateway)(nil)
