package inspection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPProvider talks JSON over HTTP to the inspection service. The service
// wraps a multimodal model behind a structured-output endpoint: each request
// names the schema the response payload must be tagged with.
type HTTPProvider struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPProvider constructs a provider client with a per-call timeout.
func NewHTTPProvider(url, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("inspection_provider"),
	}
}

type providerRequest struct {
	Task           string          `json:"task"`
	Prompt         string          `json:"prompt"`
	ResponseSchema string          `json:"response_schema"`
	Images         []providerImage `json:"images"`
}

type providerImage struct {
	Role     string `json:"role"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type providerResponse struct {
	Schema string          `json:"schema"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// transportError marks provider failures that are worth retrying.
type transportError struct {
	err     error
	timeout bool
}

func (e *transportError) Error() string   { return e.err.Error() }
func (e *transportError) Unwrap() error   { return e.err }
func (e *transportError) Timeout() bool   { return e.timeout }
func (e *transportError) Temporary() bool { return true }

// Submit posts one task and validates the schema tag on the response.
func (p *HTTPProvider) Submit(ctx context.Context, req TaskRequest) (json.RawMessage, error) {
	payload := providerRequest{
		Task:           string(req.Task),
		Prompt:         req.Prompt,
		ResponseSchema: req.Schema,
		Images:         make([]providerImage, 0, len(req.Images)),
	}
	for _, img := range req.Images {
		payload.Images = append(payload.Images, providerImage{
			Role:     img.Role,
			MimeType: img.MimeType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("inspection: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("inspection: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &transportError{err: err, timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &transportError{err: err}
	}

	if resp.StatusCode >= 500 {
		return nil, &transportError{err: fmt.Errorf("inspection: provider status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inspection: provider status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var decoded providerResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("inspection: unparseable provider response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("inspection: provider error: %s", decoded.Error)
	}
	if decoded.Schema != req.Schema {
		p.logger.Warn("provider returned unexpected schema tag",
			zap.String("want", req.Schema), zap.String("got", decoded.Schema))
		return nil, fmt.Errorf("inspection: schema mismatch: want %q got %q", req.Schema, decoded.Schema)
	}
	if len(decoded.Result) == 0 {
		return nil, fmt.Errorf("inspection: empty result for schema %q", req.Schema)
	}
	return decoded.Result, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
