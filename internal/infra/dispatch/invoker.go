package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"flowgate/internal/domain"
)

// InvokeResult is the raw webhook response; status classification is the
// dispatcher's job.
type InvokeResult struct {
	StatusCode int
	Body       []byte
}

// Invoker issues one webhook call. Implementations must honor ctx deadlines.
type Invoker interface {
	Invoke(ctx context.Context, endpoint domain.ToolEndpoint, args json.RawMessage) (*InvokeResult, error)
}

// WebhookInvoker posts tool arguments to a resolved endpoint with the
// endpoint's configured headers.
type WebhookInvoker struct {
	httpClient *http.Client
	logger     *zap.Logger
}

type WebhookInvokerOptions struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewWebhookInvoker(opts WebhookInvokerOptions) *WebhookInvoker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &WebhookInvoker{
		httpClient: httpClient,
		logger:     logger.Named("invoker"),
	}
}

func (w *WebhookInvoker) Invoke(ctx context.Context, endpoint domain.ToolEndpoint, args json.RawMessage) (*InvokeResult, error) {
	body := args
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range endpoint.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}

	w.logger.Debug("webhook call finished",
		zap.String("url", endpoint.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(data)),
	)
	return &InvokeResult{StatusCode: resp.StatusCode, Body: data}, nil
}
