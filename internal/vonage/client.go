// Package vonage sends WhatsApp messages through the Vonage Messages API,
// authenticating with per-tenant application JWTs.
package vonage

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nunutzi10/foam-ai/internal/messages"
)

const (
	productionHost = "https://api.nexmo.com"
	sandboxHost    = "https://messages-sandbox.nexmo.com"

	messagesPath = "/v1/messages"

	tokenTTL = 10 * time.Minute
)

// Client talks to the Messages API on behalf of one application.
type Client struct {
	applicationID string
	privateKey    *rsa.PrivateKey
	host          string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient parses the PEM-encoded private key and binds the client to the
// sandbox or production host.
func NewClient(log *slog.Logger, applicationID, privateKeyPEM string, production bool, httpClient *http.Client) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	host := productionHost
	if !production {
		host = sandboxHost
	}
	return &Client{
		applicationID: applicationID,
		privateKey:    key,
		host:          host,
		httpClient:    httpClient,
		logger:        log.With(slog.String("service", "vonage")),
	}, nil
}

// Outbound is a single WhatsApp message to dispatch.
type Outbound struct {
	To          string
	From        string
	ContentType messages.ContentType
	Body        string
	MediaURL    string
}

type sendRequest struct {
	To          string       `json:"to"`
	From        string       `json:"from"`
	Channel     string       `json:"channel"`
	MessageType string       `json:"message_type"`
	Text        string       `json:"text,omitempty"`
	Image       *mediaObject `json:"image,omitempty"`
	Audio       *mediaObject `json:"audio,omitempty"`
}

type mediaObject struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

type sendResponse struct {
	MessageUUID string `json:"message_uuid"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// ErrUnsupportedContent is returned for message kinds the channel cannot
// carry outbound.
var ErrUnsupportedContent = fmt.Errorf("vonage: unsupported outbound content type")

// Send dispatches one message and returns the provider's message UUID.
func (c *Client) Send(ctx context.Context, out Outbound) (string, error) {
	payload, err := buildSendRequest(out)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	token, err := c.generateJWT(time.Now())
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+messagesPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("messages api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		c.logger.Warn("send rejected",
			slog.Int("status", resp.StatusCode), slog.String("detail", apiErr.Detail))
		return "", fmt.Errorf("messages api: status %d: %s", resp.StatusCode, apiErr.Title)
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return parsed.MessageUUID, nil
}

// buildSendRequest maps a message onto the channel wire shape. Only text,
// image and audio can be carried outbound.
func buildSendRequest(out Outbound) (sendRequest, error) {
	req := sendRequest{
		To:      out.To,
		From:    out.From,
		Channel: "whatsapp",
	}
	switch out.ContentType {
	case messages.ContentTypeText:
		req.MessageType = "text"
		req.Text = out.Body
	case messages.ContentTypeImage:
		req.MessageType = "image"
		req.Image = &mediaObject{URL: out.MediaURL, Caption: out.Body}
	case messages.ContentTypeAudio:
		req.MessageType = "audio"
		req.Audio = &mediaObject{URL: out.MediaURL}
	default:
		return sendRequest{}, fmt.Errorf("%w: %s", ErrUnsupportedContent, out.ContentType)
	}
	return req, nil
}

// generateJWT builds the short-lived application token the Messages API
// expects.
func (c *Client) generateJWT(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"application_id": c.applicationID,
		"iat":            now.Unix(),
		"exp":            now.Add(tokenTTL).Unix(),
		"jti":            uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(c.privateKey)
}
