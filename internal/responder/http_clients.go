package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/pkg/errors"
)

func upstreamClient(cfg config.UpstreamConfig) *http.Client {
	timeout := constants.DefaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &http.Client{Timeout: timeout}
}

type HTTPResolver struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPResolver(cfg config.UpstreamConfig) *HTTPResolver {
	return &HTTPResolver{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  upstreamClient(cfg),
	}
}

func (r *HTTPResolver) ResolveTicketAgent(ctx context.Context, conversationID string) (TicketAgentConfig, error) {
	endpoint := fmt.Sprintf("%s/tickets/resolve?conversation_id=%s", r.baseURL, url.QueryEscape(conversationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TicketAgentConfig{}, errors.ErrInternal.WithCause(err).AsFatal()
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return TicketAgentConfig{}, errors.ErrServiceUnavailable.WithCause(fmt.Errorf("resolver request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return TicketAgentConfig{}, errors.ErrResolverNotFound.WithDetail("conversation_id", conversationID)
	case resp.StatusCode >= 500:
		return TicketAgentConfig{}, errors.ErrServiceUnavailable.WithDetail("status", resp.StatusCode).AsRetryable()
	case resp.StatusCode >= 400:
		return TicketAgentConfig{}, errors.ErrValidation.WithDetail("status", resp.StatusCode).AsFatal()
	}

	var cfg TicketAgentConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return TicketAgentConfig{}, errors.ErrInternal.WithCause(fmt.Errorf("failed to decode resolver response: %w", err)).AsFatal()
	}

	return cfg, nil
}

type HTTPCompleter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPCompleter(cfg config.UpstreamConfig) *HTTPCompleter {
	return &HTTPCompleter{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  upstreamClient(cfg),
	}
}

func (c *HTTPCompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, errors.ErrInternal.WithCause(err).AsFatal()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, errors.ErrInternal.WithCause(err).AsFatal()
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Timeouts are transient: they feed the retry budget, they are not
		// a hard cancellation of the pipeline.
		return CompletionResult{}, errors.ErrTimeout.WithCause(fmt.Errorf("completion request failed: %w", err)).AsRetryable()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return CompletionResult{}, errors.ErrServiceUnavailable.WithDetail("status", resp.StatusCode).AsRetryable()
	case resp.StatusCode >= 400:
		return CompletionResult{}, errors.ErrValidation.WithDetail("status", resp.StatusCode).AsFatal()
	}

	var result CompletionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return CompletionResult{}, errors.ErrInternal.WithCause(fmt.Errorf("failed to decode completion response: %w", err)).AsFatal()
	}

	return result, nil
}
