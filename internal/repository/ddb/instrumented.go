package ddb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	appErrors "qalam-backend/pkg/errors"
)

// CallObserver receives the outcome of every store call, typically to
// record metrics.
type CallObserver interface {
	ObserveStoreCall(operation string, duration time.Duration, err error)
}

// BreakerConfig holds the circuit breaker thresholds for store calls.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the thresholds used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "dynamodb",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// NewBreaker builds the circuit breaker guarding store calls. Conditional
// check failures and missing-index errors are expected outcomes and do not
// count against the store.
func NewBreaker(config BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				isConditionalCheckFailed(err) ||
				isIndexUnavailable(err) ||
				errors.Is(err, context.Canceled)
		},
	})
}

// instrumentedAPI wraps every call in a span, the circuit breaker and the
// observer.
type instrumentedAPI struct {
	next     API
	table    string
	tracer   trace.Tracer
	breaker  *gobreaker.CircuitBreaker
	observer CallObserver
}

// InstrumentOption configures Instrument.
type InstrumentOption func(*instrumentedAPI)

// WithTracer sets the tracer. The global provider's tracer is the default.
func WithTracer(t trace.Tracer) InstrumentOption {
	return func(a *instrumentedAPI) { a.tracer = t }
}

// WithBreaker guards calls with cb.
func WithBreaker(cb *gobreaker.CircuitBreaker) InstrumentOption {
	return func(a *instrumentedAPI) { a.breaker = cb }
}

// WithObserver reports call outcomes to o.
func WithObserver(o CallObserver) InstrumentOption {
	return func(a *instrumentedAPI) { a.observer = o }
}

// Instrument decorates api with tracing, circuit breaking and call
// observation.
func Instrument(api API, table string, opts ...InstrumentOption) API {
	a := &instrumentedAPI{
		next:   api,
		table:  table,
		tracer: otel.Tracer("qalam-backend/ddb"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func call[T any](ctx context.Context, a *instrumentedAPI, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := a.tracer.Start(ctx, "dynamodb."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "dynamodb"),
			attribute.String("db.operation", op),
			attribute.String("aws.dynamodb.table_names", a.table),
		))
	defer span.End()

	start := time.Now()
	var (
		out T
		err error
	)
	if a.breaker != nil {
		var res any
		res, err = a.breaker.Execute(func() (any, error) { return fn(ctx) })
		if res != nil {
			out = res.(T)
		}
	} else {
		out, err = fn(ctx)
	}

	if a.observer != nil {
		a.observer.ObserveStoreCall(op, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = appErrors.NewInternal("store unavailable", err)
		}
	}
	return out, err
}

func (a *instrumentedAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return call(ctx, a, "GetItem", func(ctx context.Context) (*dynamodb.GetItemOutput, error) {
		return a.next.GetItem(ctx, in, optFns...)
	})
}

func (a *instrumentedAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return call(ctx, a, "PutItem", func(ctx context.Context) (*dynamodb.PutItemOutput, error) {
		return a.next.PutItem(ctx, in, optFns...)
	})
}

func (a *instrumentedAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return call(ctx, a, "UpdateItem", func(ctx context.Context) (*dynamodb.UpdateItemOutput, error) {
		return a.next.UpdateItem(ctx, in, optFns...)
	})
}

func (a *instrumentedAPI) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return call(ctx, a, "DeleteItem", func(ctx context.Context) (*dynamodb.DeleteItemOutput, error) {
		return a.next.DeleteItem(ctx, in, optFns...)
	})
}

func (a *instrumentedAPI) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return call(ctx, a, "Query:"+aws.ToString(in.IndexName), func(ctx context.Context) (*dynamodb.QueryOutput, error) {
		return a.next.Query(ctx, in, optFns...)
	})
}

func (a *instrumentedAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return call(ctx, a, "Scan", func(ctx context.Context) (*dynamodb.ScanOutput, error) {
		return a.next.Scan(ctx, in, optFns...)
	})
}

func (a *instrumentedAPI) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return call(ctx, a, "DescribeTable", func(ctx context.Context) (*dynamodb.DescribeTableOutput, error) {
		return a.next.DescribeTable(ctx, in, optFns...)
	})
}
