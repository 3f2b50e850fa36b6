// Package token obtains realtime credentials from a token endpoint and, for
// deployments that serve their own endpoint, issues and verifies them.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

const maxResponseBytes = 1 << 20

// TokenFetchError wraps any failure to obtain a credential from the endpoint.
type TokenFetchError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TokenFetchError) Error() string {
	return "failed to fetch token: " + e.Err.Error()
}

func (e *TokenFetchError) Unwrap() error {
	return e.Err
}

// Details returns the decoded response body, if the endpoint sent one.
func (e *TokenFetchError) Details() any {
	if len(e.Body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(e.Body, &v); err != nil {
		return string(e.Body)
	}
	return v
}

// Request is the body posted to the token endpoint.
type Request struct {
	ClientID  string `json:"clientId"`
	UserID    string `json:"userId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
}

// Provider fetches credentials from a configured endpoint.
type Provider struct {
	endpoint string
	client   *http.Client
	log      *zerolog.Logger
}

// NewProvider creates a provider. A nil client uses a client with a 10s timeout.
func NewProvider(endpoint string, client *http.Client, logger *zerolog.Logger) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Provider{endpoint: endpoint, client: client, log: logger}
}

// Endpoint returns the configured token endpoint.
func (p *Provider) Endpoint() string {
	return p.endpoint
}

// Fetch posts req to the endpoint and decodes the credential.
// A JSON body is taken as token details or a token request; any other body
// is taken as a literal token string.
func (p *Provider) Fetch(ctx context.Context, req Request) (*realtime.Token, error) {
	p.log.Info().Str("client_id", req.ClientID).Msg("fetching realtime token")

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &TokenFetchError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TokenFetchError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/plain")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.log.Error().Err(err).Msg("token fetch failed")
		return nil, &TokenFetchError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TokenFetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fetchErr := &TokenFetchError{
			StatusCode: resp.StatusCode,
			Body:       body,
			Err:        fmt.Errorf("request failed with status code %d", resp.StatusCode),
		}
		p.log.Error().Int("status", resp.StatusCode).Msg("token fetch failed")
		return nil, fetchErr
	}

	tok, err := decodeToken(resp.Header.Get("Content-Type"), body)
	if err != nil {
		p.log.Error().Err(err).Msg("token fetch failed")
		return nil, &TokenFetchError{StatusCode: resp.StatusCode, Body: body, Err: err}
	}

	ev := p.log.Info().Str("client_id", tok.ClientID)
	if exp := tok.ExpiresAt(); !exp.IsZero() {
		ev = ev.Time("expires", exp)
	}
	ev.Msg("token received")

	return tok, nil
}

func decodeToken(contentType string, body []byte) (*realtime.Token, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty token response")
	}

	if mediaType != "application/json" && trimmed[0] != '{' {
		return &realtime.Token{Token: strings.TrimSpace(string(trimmed))}, nil
	}

	var tok realtime.Token
	if err := json.Unmarshal(trimmed, &tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	tok.Raw = json.RawMessage(append([]byte(nil), trimmed...))
	return &tok, nil
}
