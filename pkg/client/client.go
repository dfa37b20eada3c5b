// Package client talks to a running genesis server.
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
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/genesis/pkg/orchestrator"
	"github.com/go-go-golems/genesis/pkg/server"
)

// APIError is a non-2xx reply decoded from the server error envelope.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func New(baseURL string, options ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

func (c *Client) Status(ctx context.Context) (*orchestrator.Status, error) {
	var s orchestrator.Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Generate(ctx context.Context, req server.GenerateRequest) (*server.GenerateResponse, error) {
	var res server.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/generate", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SwitchProvider(ctx context.Context, provider string, apiKey string) (*server.SwitchProviderResponse, error) {
	var res server.SwitchProviderResponse
	req := server.SwitchProviderRequest{Provider: provider, APIKey: apiKey}
	if err := c.do(ctx, http.MethodPost, "/api/switch-provider", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SwitchMode(ctx context.Context, mode string) (*server.SwitchModeResponse, error) {
	var res server.SwitchModeResponse
	if err := c.do(ctx, http.MethodPost, "/api/switch-mode", server.SwitchModeRequest{Mode: mode}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SetParameter(ctx context.Context, name string, value interface{}) (*server.SetParameterResponse, error) {
	var res server.SetParameterResponse
	req := server.SetParameterRequest{Name: name, Value: value}
	if err := c.do(ctx, http.MethodPost, "/api/parameters", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StatusUpdate is one message received from the live status stream.
type StatusUpdate struct {
	Type      string              `json:"type"`
	Data      orchestrator.Status `json:"data"`
	Timestamp time.Time           `json:"timestamp"`
}

// Watch streams status updates to f until ctx is done, the server closes the
// connection, or f returns an error.
func (c *Client) Watch(ctx context.Context, f func(StatusUpdate) error) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return errors.Wrap(err, "could not connect to live status")
	}
	defer conn.CloseNow()
	log.Debug().Str("url", wsURL).Msg("watching live status")

	for {
		var u StatusUpdate
		if err := wsjson.Read(ctx, conn, &u); err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			return errors.Wrap(err, "live status stream failed")
		}
		if err := f(u); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "could not encode request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "could not build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "could not read response")
	}
	log.Trace().Str("method", method).Str("path", path).Int("status", resp.StatusCode).
		Str("request_id", resp.Header.Get(server.RequestIDHeader)).Msg("server replied")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var envelope struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
			apiErr.Kind = envelope.Error
			apiErr.Message = envelope.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "could not decode response")
	}
	return nil
}
