package request

import (
	"context"

	"github.com/nhle/ews-client/internal/async"
	"github.com/nhle/ews-client/internal/ewserr"
	"github.com/nhle/ews-client/internal/transport"
)

// Callback is invoked once the async send of h has completed. It runs on its
// own goroutine and typically calls EndExecute.
type Callback[T any] func(h *AsyncHandle[T])

// AsyncHandle tracks an operation started with BeginExecute. It must be
// passed to EndExecute exactly once.
type AsyncHandle[T any] struct {
	executor *Executor
	op       Operation[T]
	request  *transport.Request
	state    any
	ctx      context.Context
	x        *exchange

	future *async.Future
	ready  chan struct{}
}

// State returns the caller state given to BeginExecute.
func (h *AsyncHandle[T]) State() any { return h.state }

// Request returns the request that was sent.
func (h *AsyncHandle[T]) Request() *transport.Request { return h.request }

// IsCompleted reports whether the send has finished, so EndExecute won't
// block on it.
func (h *AsyncHandle[T]) IsCompleted() bool { return h.future.IsDone() }

// Done is closed when the send has finished.
func (h *AsyncHandle[T]) Done() <-chan struct{} { return h.future.Done() }

// BeginExecute validates and builds the request on the calling goroutine,
// then sends it on the executor's pool. Validation and build failures are
// returned immediately. The send does not observe ctx cancellation once
// submitted.
func BeginExecute[T any](ctx context.Context, e *Executor, op Operation[T], callback Callback[T], state any) (*AsyncHandle[T], error) {
	x := e.newExchange(op.Name())

	req, err := e.build(op)
	if err != nil {
		e.finish(ctx, x, err)
		return nil, err
	}
	x.request = req

	h := &AsyncHandle[T]{
		executor: e,
		op:       op,
		request:  req,
		state:    state,
		ctx:      context.WithoutCancel(ctx),
		x:        x,
		ready:    make(chan struct{}),
	}

	var cb async.Callback
	if callback != nil {
		cb = func(*async.Future) {
			<-h.ready
			callback(h)
		}
	}

	sender := e.sender
	h.future = e.pool.Submit(func() (any, error) {
		resp, err := sender.Send(h.ctx, req)
		if err != nil {
			if resp != nil {
				resp.Close()
			}
			return nil, err
		}
		return resp, nil
	}, cb)
	close(h.ready)

	return h, nil
}

// EndExecute waits for the send started by BeginExecute and reads the
// response exactly like Execute. A send that failed or was rejected by a
// saturated pool is reported as a transport failure.
func EndExecute[T any](h *AsyncHandle[T]) (T, error) {
	var zero T
	e := h.executor

	v, err := h.future.Get()
	if err != nil {
		err = ewserr.Transport(err)
		e.finish(h.ctx, h.x, err)
		return zero, err
	}

	result, err := readResponse(e, h.x, v.(*transport.Response), h.op)
	e.finish(h.ctx, h.x, err)
	return result, err
}
