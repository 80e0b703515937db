// Package request executes a single service operation over a Sender,
// synchronously or on the executor's async pool, and reads the typed
// response.
package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/ews-client/internal/async"
	"github.com/nhle/ews-client/internal/ewserr"
	"github.com/nhle/ews-client/internal/metrics"
	"github.com/nhle/ews-client/internal/soap"
	"github.com/nhle/ews-client/internal/trace"
	"github.com/nhle/ews-client/internal/transport"
)

// Operation is one logical service call producing a T.
type Operation[T any] interface {
	// Name is the operation name used in traces and metrics.
	Name() string

	// Validate rejects malformed input before anything is sent.
	Validate() error

	// WriteBody writes the complete request document.
	WriteBody(w io.Writer) error

	// ReadResponse materializes the result from the response document.
	ReadResponse(r *soap.Reader) (T, error)
}

// wireOperation is the part of an Operation needed to build a request.
type wireOperation interface {
	Name() string
	Validate() error
	WriteBody(w io.Writer) error
}

// ErrInvalidRequest wraps Validate failures.
var ErrInvalidRequest = errors.New("invalid request")

// Request header names set on every call.
const (
	HeaderClientRequestID       = "client-request-id"
	HeaderReturnClientRequestID = "return-client-request-id"
)

// Executor sends operations to one endpoint.
type Executor struct {
	url    string
	sender transport.Sender
	pool   *async.Pool

	header  []transport.Field
	tracer  *trace.Tracer
	failed  *trace.FailedRequestLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithTracer traces requests and responses.
func WithTracer(t *trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithFailedRequestLogger dumps every failed call. Response bodies are
// buffered so they can be included in the dump.
func WithFailedRequestLogger(l *trace.FailedRequestLogger) Option {
	return func(e *Executor) { e.failed = l }
}

// WithMetrics records request counts and durations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithHeader adds a header sent with every request, after the standard
// ones. It cannot replace a standard header.
func WithHeader(key, value string) Option {
	return func(e *Executor) {
		e.header = append(e.header, transport.Field{Key: key, Value: value})
	}
}

// WithPool replaces the executor's async pool. The executor takes
// ownership and shuts it down on Close.
func WithPool(p *async.Pool) Option {
	return func(e *Executor) { e.pool = p }
}

// NewExecutor returns an executor posting to url through sender.
func NewExecutor(url string, sender transport.Sender, opts ...Option) (*Executor, error) {
	if url == "" {
		return nil, errors.New("executor: endpoint URL is required")
	}
	if sender == nil {
		return nil, errors.New("executor: sender is required")
	}

	e := &Executor{url: url, sender: sender, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = async.NewPool()
	}
	return e, nil
}

// URL returns the endpoint.
func (e *Executor) URL() string { return e.url }

// Pool returns the pool running async sends.
func (e *Executor) Pool() *async.Pool { return e.pool }

// Close stops accepting async work. Pending sends still complete.
func (e *Executor) Close() {
	e.pool.Shutdown()
}

// exchange collects what a call produced, for metrics and the failed
// request dump.
type exchange struct {
	operation    string
	started      time.Time
	request      *transport.Request
	response     *transport.Response
	responseBody []byte
}

// Execute validates op, sends it, and reads the response on the calling
// goroutine. The response is closed before Execute returns.
func Execute[T any](ctx context.Context, e *Executor, op Operation[T]) (T, error) {
	var zero T
	x := e.newExchange(op.Name())

	req, err := e.build(op)
	if err != nil {
		e.finish(ctx, x, err)
		return zero, err
	}
	x.request = req

	resp, err := e.send(ctx, req)
	if err != nil {
		e.finish(ctx, x, err)
		return zero, err
	}

	result, err := readResponse(e, x, resp, op)
	e.finish(ctx, x, err)
	return result, err
}

func (e *Executor) newExchange(operation string) *exchange {
	return &exchange{operation: operation, started: e.now()}
}

// build validates op and writes the wire request.
func (e *Executor) build(op wireOperation) (*transport.Request, error) {
	if err := op.Validate(); err != nil {
		return nil, ewserr.Wrap(ewserr.KindService,
			fmt.Errorf("%w: %w", ErrInvalidRequest, err),
			"The %s request is invalid. %s", op.Name(), err)
	}

	req, err := transport.NewRequest(op.Name(), e.url, e.requestHeader(), op.WriteBody)
	if err != nil {
		return nil, ewserr.Transport(err)
	}

	if e.tracer.Enabled(trace.RequestHTTPHeaders) {
		e.tracer.EmitHeaders(trace.RequestHTTPHeaders, req.Header())
	}
	if e.tracer.Enabled(trace.Request) {
		e.tracer.EmitBody(trace.Request, req.BodyBytes())
	}
	return req, nil
}

// requestHeader lists the standard headers followed by the WithHeader
// extras, in order.
func (e *Executor) requestHeader() transport.Header {
	fields := []transport.Field{
		{Key: "Content-Type", Value: "text/xml; charset=utf-8"},
		{Key: "Accept", Value: "text/xml"},
		{Key: HeaderClientRequestID, Value: uuid.NewString()},
		{Key: HeaderReturnClientRequestID, Value: "true"},
	}
	standard := len(fields)
	for _, f := range e.header {
		if !hasField(fields[:standard], f.Key) {
			fields = append(fields, f)
		}
	}
	return transport.NewHeader(fields...)
}

func hasField(fields []transport.Field, key string) bool {
	for _, f := range fields {
		if strings.EqualFold(f.Key, key) {
			return true
		}
	}
	return false
}

func (e *Executor) send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	resp, err := e.sender.Send(ctx, req)
	if err != nil {
		if resp != nil {
			resp.Close()
		}
		return nil, ewserr.Transport(err)
	}
	return resp, nil
}

// finish records the outcome of a call.
func (e *Executor) finish(ctx context.Context, x *exchange, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		kind, _ := ewserr.KindOf(ewserr.Translate(err))
		outcome = kind.String()
	}
	e.metrics.ObserveRequest(x.operation, outcome, e.now().Sub(x.started))

	if err == nil || e.failed == nil {
		return
	}

	fr := &trace.FailedRequest{
		Operation:    x.operation,
		URL:          e.url,
		ResponseBody: x.responseBody,
		Error:        err.Error(),
		FailedAt:     e.now(),
	}
	if x.request != nil {
		fr.RequestHeaders = transport.FormatHeader(x.request.Header())
		fr.RequestBody = x.request.BodyBytes()
	}
	if x.response != nil {
		fr.StatusCode = x.response.StatusCode
		fr.ResponseHeaders = transport.FormatHeader(x.response.Header)
	}
	e.failed.Log(ctx, fr)
}
