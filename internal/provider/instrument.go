package provider

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/metrics"
)

const tracerName = "github.com/specialistvlad/llmgrid/internal/provider"

// instrumented decorates a Provider with rate limiting, tracing, metrics and
// error classification.
type instrumented struct {
	next    Provider
	limiter *rate.Limiter
	tracer  trace.Tracer
}

// Instrument wraps p. A positive requestsPerSecond installs a token bucket
// with a burst of one second's worth of requests.
func Instrument(p Provider, requestsPerSecond float64) Provider {
	in := &instrumented{next: p, tracer: otel.Tracer(tracerName)}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		in.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return in
}

func (in *instrumented) Name() string { return in.next.Name() }

// Unwrap returns the decorated provider.
func (in *instrumented) Unwrap() Provider { return in.next }

func (in *instrumented) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	return observe(ctx, in, "complete", req.Model, func(ctx context.Context) (*Completion, Usage, error) {
		c, err := in.next.Complete(ctx, req)
		if err != nil {
			return nil, Usage{}, err
		}
		return c, c.Usage, nil
	})
}

func (in *instrumented) Chat(ctx context.Context, req ChatRequest) (*Completion, error) {
	return observe(ctx, in, "chat", req.Model, func(ctx context.Context) (*Completion, Usage, error) {
		c, err := in.next.Chat(ctx, req)
		if err != nil {
			return nil, Usage{}, err
		}
		return c, c.Usage, nil
	})
}

func (in *instrumented) Embed(ctx context.Context, req EmbedRequest) (*Embedding, error) {
	return observe(ctx, in, "embed", req.Model, func(ctx context.Context) (*Embedding, Usage, error) {
		e, err := in.next.Embed(ctx, req)
		if err != nil {
			return nil, Usage{}, err
		}
		return e, e.Usage, nil
	})
}

func observe[T any](ctx context.Context, in *instrumented, op, model string, fn func(ctx context.Context) (T, Usage, error)) (T, error) {
	name := in.next.Name()
	logger := ctxlog.FromContext(ctx).With("provider", name, "operation", op, "model", model)

	ctx, span := in.tracer.Start(ctx, "provider."+op, trace.WithAttributes(
		attribute.String("llm.provider", name),
		attribute.String("llm.model", model),
	))
	defer span.End()

	if in.limiter != nil {
		if err := in.limiter.Wait(ctx); err != nil {
			var zero T
			perr := Classify(name, err)
			span.RecordError(perr)
			span.SetStatus(codes.Error, "rate limiter wait failed")
			return zero, perr
		}
	}

	start := time.Now()
	v, usage, err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		perr := Classify(name, err)
		metrics.RecordProviderCall(name, op, perr.Kind.String(), elapsed, 0, 0)
		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Kind.String())
		logger.Debug("Provider call failed.", "kind", perr.Kind.String(), "duration", elapsed, "error", err)
		return v, perr
	}

	metrics.RecordProviderCall(name, op, "ok", elapsed, usage.PromptTokens, usage.CompletionTokens)
	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "")
	logger.Debug("Provider call finished.", "duration", elapsed, "prompt_tokens", usage.PromptTokens, "completion_tokens", usage.CompletionTokens)
	return v, nil
}
