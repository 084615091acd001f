package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRemoteTimeout = 15 * time.Second
	maxResponseSize      = 4 << 20
)

// Remote calls an OpenAI-compatible chat completions endpoint. Each call is
// a single attempt bounded by a fixed timeout.
type Remote struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	health     HealthChecker
}

// NewRemote creates a client for the API at baseURL, e.g.
// "https://api.openai.com/v1".
func NewRemote(baseURL, apiKey, model string) *Remote {
	return &Remote{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		timeout:    defaultRemoteTimeout,
		httpClient: &http.Client{},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Stream performs the request and delivers the reply as a single fragment.
func (c *Remote) Stream(ctx context.Context, req Request) *Stream {
	text, err := c.Complete(ctx, req)
	if err != nil {
		return failedStream(err)
	}
	if c.health != nil {
		c.health.CheckHealth(ctx)
	}
	return finishedStream(Fragment{Text: text})
}

// Complete sends req and returns the content of the first choice.
func (c *Remote) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body, err := json.Marshal(chatRequest{Model: model, Messages: req.remoteMessages()})
	if err != nil {
		return "", newError(ErrNetwork, ReasonNetwork, "marshaling request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", newError(ErrNetwork, ReasonNetwork, "creating request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", transportError(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", newError(ErrNetwork, ReasonAuth, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", newError(ErrNetwork, ReasonNetwork, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data)), nil)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", newError(ErrNetwork, ReasonNetwork, "malformed response", err)
	}
	if len(out.Choices) == 0 {
		return "", newError(ErrNetwork, ReasonNetwork, "malformed response: no choices", nil)
	}
	return out.Choices[0].Message.Content, nil
}

func transportError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return newError(ErrNetwork, ReasonTimeout, "", err)
	}
	return newError(ErrNetwork, ReasonNetwork, "", err)
}

func (c *Remote) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
