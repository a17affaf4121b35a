package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mindburn-Labs/helm-actions/pkg/plan"
	"github.com/Mindburn-Labs/helm-actions/pkg/query"
)

// Resolver wraps a plan.Resolver with tracing, metrics and logging.
type Resolver struct {
	next     *plan.Resolver
	provider *Provider
	logger   *slog.Logger
}

// NewResolver instruments next with p.
func NewResolver(next *plan.Resolver, p *Provider) *Resolver {
	return &Resolver{
		next:     next,
		provider: p,
		logger:   slog.Default().With("component", "resolver"),
	}
}

// Resolve resolves raw and records one step sample per resolved step.
// Error steps are data, not operation failures: only ErrNilPlan and
// ErrNilCatalog count as errors.
func (r *Resolver) Resolve(ctx context.Context, raw *plan.RawPlan) (*plan.ResolvedPlan, error) {
	n := 0
	if raw != nil {
		n = len(raw.Steps)
	}
	ctx, finish := r.provider.TrackOperation(ctx, "plan.resolve", AttrStepCount.Int(n))

	out, err := r.next.Resolve(raw)
	finish(err)
	if err != nil {
		r.logger.WarnContext(ctx, "plan rejected", "error", err)
		return nil, err
	}

	span := trace.SpanFromContext(ctx)
	bound, failed := 0, 0
	for _, step := range out.Steps {
		switch s := step.(type) {
		case *plan.BoundStep:
			bound++
			r.provider.stepCounter.Add(ctx, 1, metric.WithAttributes(BoundStep(s.ActionID)...))
		case *plan.ErrorStep:
			failed++
			r.provider.stepCounter.Add(ctx, 1, metric.WithAttributes(ErrorStep(s.ActionID, string(s.Kind))...))
			span.AddEvent("step.error", trace.WithAttributes(
				AttrActionID.String(s.ActionID),
				AttrErrorKind.String(string(s.Kind)),
			))
			r.logger.DebugContext(ctx, "step not bound",
				"index", s.Index, "action", s.ActionID, "kind", s.Kind, "parameter", s.Parameter, "message", s.Message)
		}
	}
	r.logger.InfoContext(ctx, "plan resolved", "steps", len(out.Steps), "bound", bound, "errors", failed)
	return out, nil
}

// Compile compiles q and records the outcome under the dialect.
func (p *Provider) Compile(ctx context.Context, q *query.Query, d query.Dialect, schema *query.SchemaCatalog) (*query.Compiled, error) {
	ctx, finish := p.TrackOperation(ctx, "query.compile", AttrDialect.String(d.String()))
	compiled, err := query.CompileQuery(q, d, schema)
	if err != nil {
		var verr *query.ValidationError
		if errors.As(err, &verr) {
			trace.SpanFromContext(ctx).SetAttributes(AttrQueryCode.String(verr.Code))
		}
	}
	finish(err)
	return compiled, err
}
