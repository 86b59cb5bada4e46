package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"flowgate/internal/domain"
)

const apiKeyHeader = "X-N8N-API-KEY"

const webhookNodeType = "n8n-nodes-base.webhook"

// Client lists the automation engine's workflows over its read API and
// extracts the webhook-trigger nodes of active workflows. One Refresh is one
// network round trip; retry policy belongs to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewClient(opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = domain.DefaultDiscoveryBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = time.Duration(domain.DefaultDiscoveryTimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		logger:     logger.Named("discovery"),
	}
}

// AuthHeaders returns the headers required to call discovered webhook
// endpoints behind the same engine.
func (c *Client) AuthHeaders() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{apiKeyHeader: c.apiKey}
}

// Refresh fetches the current workflow list and returns the webhook nodes of
// active workflows in server order. An authenticated call with zero active
// workflows is a valid empty result.
func (c *Client) Refresh(ctx context.Context) ([]domain.WebhookNode, error) {
	url := c.baseURL + "/api/v1/workflows"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.E(domain.CodeInternal, "discovery.refresh", "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("workflow listing failed", zap.String("base_url", c.baseURL), zap.Error(err))
		return nil, domain.E(domain.CodeUnavailable, "discovery.refresh", err.Error(), domain.ErrDiscoveryUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.E(domain.CodeUnavailable, "discovery.refresh", "read response", domain.ErrDiscoveryUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.E(domain.CodeUnauthenticated, "discovery.refresh",
			fmt.Sprintf("workflow API rejected credentials: status %d", resp.StatusCode), domain.ErrDiscoveryUnavailable)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, domain.E(domain.CodeUnavailable, "discovery.refresh",
			fmt.Sprintf("workflow API returned status %d", resp.StatusCode), domain.ErrDiscoveryUnavailable)
	}

	workflows, err := decodeWorkflows(body)
	if err != nil {
		return nil, domain.E(domain.CodeUnavailable, "discovery.refresh", "decode workflows", domain.ErrDiscoveryUnavailable)
	}

	nodes := extractWebhookNodes(workflows)
	c.logger.Info("workflow discovery complete",
		zap.Int("workflows", len(workflows)),
		zap.Int("webhook_nodes", len(nodes)),
	)
	return nodes, nil
}

type workflowPayload struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Active bool          `json:"active"`
	Nodes  []nodePayload `json:"nodes"`
}

type nodePayload struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	WebhookID  string `json:"webhookId"`
	Parameters struct {
		Path       string `json:"path"`
		HTTPMethod string `json:"httpMethod"`
	} `json:"parameters"`
}

// decodeWorkflows accepts both response shapes the engine is known to emit:
// a bare array and an object with a "data" array.
func decodeWorkflows(body []byte) ([]workflowPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var workflows []workflowPayload
		if err := json.Unmarshal(trimmed, &workflows); err != nil {
			return nil, err
		}
		return workflows, nil
	}
	var envelope struct {
		Data []workflowPayload `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func extractWebhookNodes(workflows []workflowPayload) []domain.WebhookNode {
	var nodes []domain.WebhookNode
	for _, wf := range workflows {
		if !wf.Active {
			continue
		}
		for _, node := range wf.Nodes {
			if !isWebhookTrigger(node.Type) {
				continue
			}
			nodes = append(nodes, domain.WebhookNode{
				WorkflowID:   wf.ID,
				WorkflowName: wf.Name,
				NodeName:     node.Name,
				WebhookID:    node.WebhookID,
				HTTPMethod:   node.Parameters.HTTPMethod,
				Path:         node.Parameters.Path,
			})
		}
	}
	return nodes
}

func isWebhookTrigger(nodeType string) bool {
	if nodeType == webhookNodeType {
		return true
	}
	return strings.HasSuffix(strings.ToLower(nodeType), ".webhook")
}
