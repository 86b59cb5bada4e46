package app

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"flowgate/internal/domain"
	"flowgate/internal/infra/config"
	"flowgate/internal/infra/discovery"
	"flowgate/internal/infra/dispatch"
	"flowgate/internal/infra/registry"
	"flowgate/internal/infra/telemetry"
)

// App wires the discovery cache, override registry, dispatcher, and
// synthesizer from one validated configuration.
type App struct {
	Logger      *zap.Logger
	Config      *config.Config
	Client      *discovery.Client
	Cache       *discovery.Cache
	Overrides   *registry.Overrides
	Dispatcher  *dispatch.Dispatcher
	Synthesizer *dispatch.Synthesizer
	Metrics     domain.Metrics

	promRegistry *prometheus.Registry
}

func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promRegistry := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheusMetrics(promRegistry)

	client := discovery.NewClient(discovery.ClientOptions{
		BaseURL: cfg.Discovery.BaseURL,
		APIKey:  cfg.Discovery.APIKey,
		Timeout: cfg.Discovery.RequestTimeout,
		Logger:  logger,
	})

	cache := discovery.NewCache(discovery.CacheOptions{
		Source: client,
		Builder: discovery.IndexBuilder{
			BaseURL:     cfg.Discovery.BaseURL,
			AuthHeaders: client.AuthHeaders(),
		},
		TTL:            cfg.Discovery.TTL,
		RefreshTimeout: cfg.Discovery.RequestTimeout,
		Logger:         logger,
		Metrics:        metrics,
	})

	overrides, err := registry.Parse(cfg.Overrides, logger)
	if err != nil {
		return nil, err
	}

	invoker := dispatch.NewWebhookInvoker(dispatch.WebhookInvokerOptions{Logger: logger})
	dispatcher := dispatch.NewDispatcher(overrides, cache, invoker, dispatch.DispatcherOptions{
		CallTimeout:  cfg.Dispatch.CallTimeout,
		BatchTimeout: cfg.Dispatch.BatchTimeout,
		Logger:       logger,
		Metrics:      metrics,
	})

	return &App{
		Logger:       logger,
		Config:       cfg,
		Client:       client,
		Cache:        cache,
		Overrides:    overrides,
		Dispatcher:   dispatcher,
		Synthesizer:  dispatch.NewSynthesizer(logger),
		Metrics:      metrics,
		promRegistry: promRegistry,
	}, nil
}

// RunToolCalls dispatches a batch and synthesizes the correlated result
// messages for the conversation loop.
func (a *App) RunToolCalls(ctx context.Context, calls []domain.ToolCall) []domain.ToolResultMessage {
	outcomes := a.Dispatcher.Dispatch(ctx, calls)
	return a.Synthesizer.Synthesize(outcomes)
}

// Serve keeps the discovery snapshot fresh on its TTL and exposes the
// operator endpoint (/metrics, /healthz, /tools) until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Cache.RefreshIfNeeded(ctx); err != nil {
		a.Logger.Warn("initial discovery refresh failed", zap.Error(err))
	}
	go a.refreshLoop(ctx)

	return telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
		Addr:          a.Config.Telemetry.ListenAddress,
		EnableMetrics: a.Config.Telemetry.EnableMetrics,
		Registry:      a.promRegistry,
		Extra: map[string]http.Handler{
			"/tools": a.toolsHandler(),
		},
		Health: a.healthReport,
	}, a.Logger)
}

func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.Config.Discovery.TTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Cache.RefreshIfNeeded(ctx); err != nil {
				a.Logger.Warn("scheduled discovery refresh failed", zap.Error(err))
			}
		}
	}
}

func (a *App) healthReport() telemetry.HealthReport {
	snapshot := a.Cache.Snapshot()
	report := telemetry.HealthReport{Status: "ok", BuiltAt: snapshot.BuiltAt}
	if !snapshot.BuiltAt.IsZero() {
		report.SnapshotAge = time.Since(snapshot.BuiltAt).Round(time.Second).String()
	}
	if a.Cache.IsStale() {
		report.Status = "degraded"
	}
	return report
}

type toolListing struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Workflow string `json:"workflow,omitempty"`
	Override bool   `json:"override,omitempty"`
}

func (a *App) toolsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := a.Cache.Snapshot()

		listings := make([]toolListing, 0, len(snapshot.Index)+a.Overrides.Len())
		for _, name := range a.Overrides.Names() {
			endpoint, _ := a.Overrides.Resolve(name)
			listings = append(listings, toolListing{Name: name, URL: endpoint.URL, Override: true})
		}
		for name, endpoint := range snapshot.Index {
			listings = append(listings, toolListing{
				Name:     name,
				URL:      endpoint.URL,
				Workflow: endpoint.SourceWorkflowID,
			})
		}
		sort.Slice(listings, func(i, j int) bool {
			if listings[i].Override != listings[j].Override {
				return listings[i].Override
			}
			return listings[i].Name < listings[j].Name
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			BuiltAt time.Time     `json:"builtAt"`
			Tools   []toolListing `json:"tools"`
		}{BuiltAt: snapshot.BuiltAt, Tools: listings})
	})
}
