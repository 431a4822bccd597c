package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Opencode talks to a long-running opencode sidecar over HTTP. Like the
// subprocess adapters it runs its own inner loop and takes no tool set.
type Opencode struct {
	baseURL string
	client  *http.Client
}

func NewOpencode(baseURL string, timeout time.Duration) *Opencode {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Opencode{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *Opencode) Name() string { return "opencode" }

func (p *Opencode) Capabilities() Capabilities {
	return Capabilities{}
}

func (p *Opencode) Complete(ctx context.Context, req Request) (*Response, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("opencode: %w: base URL not configured", ErrProviderUnavailable)
	}

	body, err := json.Marshal(map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	})
	if err != nil {
		return nil, fmt.Errorf("opencode: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("opencode: %w", ErrProviderTimeout)
		}
		return nil, fmt.Errorf("opencode: %w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("opencode: %w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, errBody)
	}

	var parsed struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("opencode: %w: decode: %v", ErrProviderUnavailable, err)
	}
	return &Response{Content: parsed.Content}, nil
}
