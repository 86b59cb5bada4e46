package registry

import (
	"fmt"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"flowgate/internal/domain"
)

// Overrides is the operator-supplied exact-match table. Entries are loaded
// once at startup, always win over discovered endpoints, and keep resolving
// even when discovery is unreachable. An empty table is valid
// (discovery-only mode).
type Overrides struct {
	entries map[string]domain.ToolEndpoint
}

func New(entries map[string]domain.ToolEndpoint) *Overrides {
	if entries == nil {
		entries = map[string]domain.ToolEndpoint{}
	}
	return &Overrides{entries: entries}
}

// Parse normalizes the raw configuration form, where each value is either a
// bare URL string or an object {url, headers}.
func Parse(raw map[string]any, logger *zap.Logger) (*Overrides, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries := make(map[string]domain.ToolEndpoint, len(raw))
	for name, value := range raw {
		endpoint, err := parseEntry(value)
		if err != nil {
			return nil, domain.E(domain.CodeInvalidArgument, "registry.parse",
				fmt.Sprintf("override %q: %s", name, err), nil)
		}
		entries[name] = endpoint
	}
	if len(entries) > 0 {
		logger.Named("registry").Info("static overrides loaded", zap.Int("entries", len(entries)))
	}
	return New(entries), nil
}

// Resolve is an exact toolName match; no variant derivation happens here.
func (o *Overrides) Resolve(name string) (domain.ToolEndpoint, bool) {
	endpoint, ok := o.entries[name]
	return endpoint, ok
}

func (o *Overrides) Len() int {
	return len(o.entries)
}

// Names returns the registered tool names, sorted.
func (o *Overrides) Names() []string {
	names := make([]string, 0, len(o.entries))
	for name := range o.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseEntry(value any) (domain.ToolEndpoint, error) {
	switch v := value.(type) {
	case string:
		if err := validateURL(v); err != nil {
			return domain.ToolEndpoint{}, err
		}
		return domain.ToolEndpoint{URL: v}, nil
	case map[string]any:
		rawURL, ok := v["url"].(string)
		if !ok || rawURL == "" {
			return domain.ToolEndpoint{}, fmt.Errorf("missing url")
		}
		if err := validateURL(rawURL); err != nil {
			return domain.ToolEndpoint{}, err
		}
		endpoint := domain.ToolEndpoint{URL: rawURL}
		if rawHeaders, ok := v["headers"].(map[string]any); ok {
			headers := make(map[string]string, len(rawHeaders))
			for key, headerValue := range rawHeaders {
				s, ok := headerValue.(string)
				if !ok {
					return domain.ToolEndpoint{}, fmt.Errorf("header %q is not a string", key)
				}
				headers[key] = s
			}
			endpoint.Headers = headers
		}
		return endpoint, nil
	default:
		return domain.ToolEndpoint{}, fmt.Errorf("entry must be a URL string or {url, headers} object")
	}
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("url host is required")
	}
	return nil
}
