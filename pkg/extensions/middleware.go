// Package extensions provides explicit middleware composition for
// engine operations. Cross-cutting behavior (logging, metrics,
// tracing) is applied once at construction time with Decorate instead
// of per-call method wrapping.
package extensions

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Operation is a single engine operation: a request in, a result or an
// error out.
type Operation[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Middleware wraps an operation with additional behavior
type Middleware[Req, Res any] func(Operation[Req, Res]) Operation[Req, Res]

// Decorate composes middlewares around an operation. The first
// middleware listed becomes the outermost wrapper.
func Decorate[Req, Res any](op Operation[Req, Res], middlewares ...Middleware[Req, Res]) Operation[Req, Res] {
	for i := len(middlewares) - 1; i >= 0; i-- {
		op = middlewares[i](op)
	}
	return op
}

// OperationRecorder receives per-operation outcome metrics
type OperationRecorder interface {
	RecordOperation(ctx context.Context, operation string, duration time.Duration, success bool)
}

// FunctionTracer wraps a function invocation in a trace segment
type FunctionTracer interface {
	TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error
}

// Logging returns a middleware that logs each invocation outcome
func Logging[Req, Res any](logger *zap.Logger, operation string) Middleware[Req, Res] {
	return func(next Operation[Req, Res]) Operation[Req, Res] {
		return func(ctx context.Context, req Req) (Res, error) {
			start := time.Now()
			res, err := next(ctx, req)
			if err != nil {
				logger.Error("Operation failed",
					zap.String("operation", operation),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
				return res, err
			}
			logger.Debug("Operation completed",
				zap.String("operation", operation),
				zap.Duration("duration", time.Since(start)),
			)
			return res, nil
		}
	}
}

// Metrics returns a middleware that records latency and outcome
func Metrics[Req, Res any](recorder OperationRecorder, operation string) Middleware[Req, Res] {
	return func(next Operation[Req, Res]) Operation[Req, Res] {
		return func(ctx context.Context, req Req) (Res, error) {
			start := time.Now()
			res, err := next(ctx, req)
			recorder.RecordOperation(ctx, operation, time.Since(start), err == nil)
			return res, err
		}
	}
}

// Tracing returns a middleware that runs the operation inside a trace
// subsegment.
func Tracing[Req, Res any](tracer FunctionTracer, operation string) Middleware[Req, Res] {
	return func(next Operation[Req, Res]) Operation[Req, Res] {
		return func(ctx context.Context, req Req) (Res, error) {
			var res Res
			err := tracer.TraceFunction(ctx, operation, func(tctx context.Context) error {
				var innerErr error
				res, innerErr = next(tctx, req)
				return innerErr
			})
			return res, err
		}
	}
}
