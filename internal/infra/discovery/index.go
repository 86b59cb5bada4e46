package discovery

import (
	"strings"
	"unicode"

	"flowgate/internal/domain"
)

// IndexBuilder derives the multi-key lookup table from a discovered node
// list. Build performs no I/O and is deterministic for a given input order:
// the first node to claim a key keeps it.
type IndexBuilder struct {
	BaseURL     string
	AuthHeaders map[string]string
}

// Build derives every key variant for each node, in precedence order:
// raw display name, lowercased name, last name segment, functions.-prefixed
// token forms, workflow-name tokens, then webhook-path tokens.
func (b IndexBuilder) Build(nodes []domain.WebhookNode) domain.NameIndex {
	index := make(domain.NameIndex, len(nodes)*8)

	for order, node := range nodes {
		endpoint := domain.ToolEndpoint{
			URL:              b.endpointURL(node),
			Headers:          cloneHeaders(b.AuthHeaders),
			SourceWorkflowID: node.WorkflowID,
			WorkflowOrder:    order,
		}

		name := strings.TrimSpace(node.NodeName)
		if name == "" {
			name = strings.TrimSpace(node.WorkflowName)
		}
		if name == "" {
			name = node.WorkflowID
		}

		add(index, name, endpoint)
		add(index, strings.ToLower(name), endpoint)

		seg := lastSegment(name)
		add(index, seg, endpoint)
		add(index, strings.ToLower(seg), endpoint)

		tokens := tokenize(name)
		add(index, domain.ToolCallPrefix+joinTokens(tokens), endpoint)
		for _, tok := range tokens {
			add(index, domain.ToolCallPrefix+tok, endpoint)
			add(index, domain.ToolCallPrefix+strings.ToLower(tok), endpoint)
		}

		if wf := strings.TrimSpace(node.WorkflowName); wf != "" {
			add(index, wf, endpoint)
			add(index, strings.ToLower(wf), endpoint)
			for _, tok := range tokenize(wf) {
				add(index, tok, endpoint)
				add(index, strings.ToLower(tok), endpoint)
				add(index, domain.ToolCallPrefix+strings.ToLower(tok), endpoint)
			}
		}

		if path := strings.Trim(node.Path, "/"); path != "" {
			add(index, path, endpoint)
			add(index, strings.ToLower(path), endpoint)
			for _, tok := range tokenize(path) {
				add(index, tok, endpoint)
				add(index, strings.ToLower(tok), endpoint)
				add(index, domain.ToolCallPrefix+strings.ToLower(tok), endpoint)
			}
		}
	}

	return index
}

func (b IndexBuilder) endpointURL(node domain.WebhookNode) string {
	base := strings.TrimRight(b.BaseURL, "/")
	path := strings.Trim(node.Path, "/")

	if node.WebhookID != "" {
		if path != "" {
			return base + "/webhook/" + node.WebhookID + "/" + path
		}
		return base + "/webhook/" + node.WebhookID
	}
	if path != "" {
		return base + "/webhook/" + node.WorkflowID + "/webhook/" + path
	}
	return base + "/webhook/" + node.WorkflowID
}

func add(index domain.NameIndex, key string, endpoint domain.ToolEndpoint) {
	if key == "" || key == domain.ToolCallPrefix {
		return
	}
	if _, exists := index[key]; exists {
		return
	}
	index[key] = endpoint
}

// lastSegment returns the text after the final path-like separator.
func lastSegment(s string) string {
	if idx := strings.LastIndexAny(s, "./"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// tokenize splits a name on non-alphanumeric boundaries.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func joinTokens(tokens []string) string {
	joined := strings.Join(tokens, "_")
	return strings.ToLower(joined)
}

// probeVariants is the lookup-side ordering: raw, lowercased, last segment,
// then the prefixed form of the last segment.
func probeVariants(name string) []string {
	trimmed := strings.TrimSpace(name)
	seg := lastSegment(trimmed)
	return []string{
		name,
		strings.ToLower(trimmed),
		seg,
		domain.ToolCallPrefix + strings.ToLower(seg),
	}
}

func cloneHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(headers))
	for k, v := range headers {
		cloned[k] = v
	}
	return cloned
}
