package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"flowgate/internal/domain"
)

// OverrideResolver is the operator override table consulted before the cache.
type OverrideResolver interface {
	Resolve(name string) (domain.ToolEndpoint, bool)
}

// EndpointCache is the discovery-backed name index.
type EndpointCache interface {
	Lookup(name string) (domain.ToolEndpoint, bool)
	IsStale() bool
	RefreshIfNeeded(ctx context.Context) error
	ForceRefresh(ctx context.Context) error
}

// Dispatcher resolves and invokes a batch of tool calls concurrently. Every
// call terminates in exactly one outcome; nothing escapes Dispatch as an
// error.
type Dispatcher struct {
	overrides    OverrideResolver
	cache        EndpointCache
	invoker      Invoker
	callTimeout  time.Duration
	batchTimeout time.Duration
	logger       *zap.Logger
	metrics      domain.Metrics
}

type DispatcherOptions struct {
	CallTimeout  time.Duration
	BatchTimeout time.Duration
	Logger       *zap.Logger
	Metrics      domain.Metrics
}

func NewDispatcher(overrides OverrideResolver, cache EndpointCache, invoker Invoker, opts DispatcherOptions) *Dispatcher {
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = time.Duration(domain.DefaultCallTimeoutSeconds) * time.Second
	}
	batchTimeout := opts.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Duration(domain.DefaultBatchTimeoutSeconds) * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		overrides:    overrides,
		cache:        cache,
		invoker:      invoker,
		callTimeout:  callTimeout,
		batchTimeout: batchTimeout,
		logger:       logger.Named("dispatcher"),
		metrics:      opts.Metrics,
	}
}

// Dispatch runs every call in the batch concurrently and returns one outcome
// per call, correlated by call id. Calls still pending when the batch
// deadline elapses are forced to Timeout so the caller always gets a full
// result set promptly.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []domain.ToolCall) []domain.ToolCallOutcome {
	if len(calls) == 0 {
		return nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, d.batchTimeout)
	defer cancel()

	type indexedOutcome struct {
		index   int
		outcome domain.ToolCallOutcome
	}
	results := make(chan indexedOutcome, len(calls))

	for i, call := range calls {
		go func(index int, call domain.ToolCall) {
			results <- indexedOutcome{index: index, outcome: d.dispatchOne(batchCtx, call)}
		}(i, call)
	}

	outcomes := make([]domain.ToolCallOutcome, len(calls))
	settled := make([]bool, len(calls))
	for received := 0; received < len(calls); received++ {
		select {
		case res := <-results:
			outcomes[res.index] = res.outcome
			settled[res.index] = true
		case <-batchCtx.Done():
			for i, call := range calls {
				if !settled[i] {
					outcomes[i] = domain.ToolCallOutcome{
						CallID:   call.CallID,
						ToolName: call.ToolName,
						Status:   domain.OutcomeTimeout,
						Detail:   "batch deadline exceeded",
					}
				}
			}
			return outcomes
		}
	}
	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call domain.ToolCall) domain.ToolCallOutcome {
	start := time.Now()
	outcome := d.run(ctx, call)
	outcome.CallID = call.CallID
	outcome.ToolName = call.ToolName
	outcome.Duration = time.Since(start)

	if d.metrics != nil {
		d.metrics.ObserveToolCall(outcome.Status, outcome.Duration)
	}
	if outcome.Status == domain.OutcomeSuccess {
		d.logger.Info("tool call succeeded",
			zap.String("call_id", call.CallID),
			zap.String("tool", call.ToolName),
			zap.Duration("took", outcome.Duration),
		)
	} else {
		d.logger.Warn("tool call failed",
			zap.String("call_id", call.CallID),
			zap.String("tool", call.ToolName),
			zap.String("status", string(outcome.Status)),
			zap.String("detail", outcome.Detail),
			zap.Duration("took", outcome.Duration),
		)
	}
	return outcome
}

// run is the per-call state machine: resolve, invoke, and at most one forced
// refresh plus retry after a first-attempt 404.
func (d *Dispatcher) run(ctx context.Context, call domain.ToolCall) domain.ToolCallOutcome {
	endpoint, ok := d.resolve(ctx, call.ToolName, false)
	if !ok {
		return d.unresolved(ctx)
	}

	result, err := d.invoke(ctx, endpoint, call)
	switch {
	case err != nil:
		return errorOutcome(err)
	case isSuccess(result.StatusCode):
		return domain.ToolCallOutcome{Status: domain.OutcomeSuccess, Payload: result.Body}
	case result.StatusCode != http.StatusNotFound:
		return statusOutcome(result.StatusCode)
	}

	// First attempt hit a 404: the index may be stale. Exactly one forced
	// refresh and one more resolve/invoke cycle, then terminal either way.
	if err := d.cache.ForceRefresh(ctx); err != nil {
		d.logger.Warn("forced refresh failed", zap.String("tool", call.ToolName), zap.Error(err))
	}

	endpoint, ok = d.resolve(ctx, call.ToolName, true)
	if !ok {
		return d.unresolved(ctx)
	}

	result, err = d.invoke(ctx, endpoint, call)
	switch {
	case err != nil:
		return errorOutcome(err)
	case isSuccess(result.StatusCode):
		return domain.ToolCallOutcome{Status: domain.OutcomeSuccess, Payload: result.Body}
	default:
		return statusOutcome(result.StatusCode)
	}
}

// resolve checks overrides first, then the cache. A miss or a stale snapshot
// triggers one refresh before the single re-probe; refresh failure degrades
// to whatever the current snapshot and overrides can answer.
func (d *Dispatcher) resolve(ctx context.Context, name string, afterForce bool) (domain.ToolEndpoint, bool) {
	if endpoint, ok := d.overrides.Resolve(name); ok {
		return endpoint, true
	}
	if endpoint, ok := d.cache.Lookup(name); ok && !d.cache.IsStale() {
		return endpoint, true
	}
	if !afterForce {
		if err := d.cache.RefreshIfNeeded(ctx); err != nil {
			d.logger.Warn("discovery refresh failed, resolving against current snapshot",
				zap.String("tool", name), zap.Error(err))
		}
	}
	return d.cache.Lookup(name)
}

func (d *Dispatcher) invoke(ctx context.Context, endpoint domain.ToolEndpoint, call domain.ToolCall) (*InvokeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	return d.invoker.Invoke(callCtx, endpoint, call.Arguments)
}

// unresolved distinguishes a genuine unknown tool from a resolution that was
// cut short by the deadline.
func (d *Dispatcher) unresolved(ctx context.Context) domain.ToolCallOutcome {
	if ctx.Err() != nil {
		return domain.ToolCallOutcome{Status: domain.OutcomeTimeout, Detail: "deadline exceeded during resolution"}
	}
	return domain.ToolCallOutcome{Status: domain.OutcomeUnknownTool, Detail: domain.ErrUnknownTool.Error()}
}

func errorOutcome(err error) domain.ToolCallOutcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ToolCallOutcome{Status: domain.OutcomeTimeout, Detail: "webhook call timed out"}
	}
	return domain.ToolCallOutcome{Status: domain.OutcomeInvocationError, Detail: err.Error()}
}

func statusOutcome(status int) domain.ToolCallOutcome {
	return domain.ToolCallOutcome{
		Status: domain.OutcomeInvocationError,
		Detail: fmt.Sprintf("webhook returned status %d", status),
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}
