package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"courier/internal/config"
	"courier/pkg/errors"
)

type SendRequest struct {
	ConversationID string `json:"conversation_id"`
	InstanceID     string `json:"instance_id"`
	Text           string `json:"text"`
	ReplyID        string `json:"reply_id"`
}

type SendResult struct {
	ProviderRef string `json:"provider_ref"`
}

// SendClient delivers one reply to the external messaging provider.
// Implementations classify failures: transient errors are retried by the
// caller, permanent errors go straight to the dead letter path.
type SendClient interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// HTTPSendClient talks to the provider's REST send endpoint.
type HTTPSendClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPSendClient(cfg config.UpstreamConfig) *HTTPSendClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSendClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPSendClient) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return SendResult{}, errors.ErrInternal.WithCause(err).AsFatal()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, errors.ErrInternal.WithCause(err).AsFatal()
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures leave the send outcome unknown.
		return SendResult{}, errors.ErrProviderTransient.WithCause(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result SendResult
		if err := json.Unmarshal(body, &result); err != nil {
			// The provider accepted the message; a malformed ack body is
			// not a delivery failure.
			return SendResult{}, nil
		}
		return result, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return SendResult{}, errors.ErrProviderTransient.
			WithDetail("status_code", resp.StatusCode).
			WithDetail("body", string(body))
	default:
		return SendResult{}, errors.ErrProviderPermanent.
			WithDetail("status_code", resp.StatusCode).
			WithDetail("body", string(body)).
			WithCause(fmt.Errorf("provider rejected send: %s", resp.Status))
	}
}
