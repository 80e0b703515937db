package async

import (
	"fmt"
	"sync"
)

// TaskError wraps the failure of a submitted unit of work. The same wrapper
// is used whether the work itself failed or the pool rejected it.
type TaskError struct {
	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("async task failed: %v", e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Future is the pending result of a submitted unit of work.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result any, err error) {
	f.once.Do(func() {
		f.result = result
		if err != nil {
			f.err = &TaskError{Err: err}
		}
		close(f.done)
	})
}

// Get blocks until the work completes and returns its result, or a
// *TaskError wrapping its failure.
func (f *Future) Get() (any, error) {
	<-f.done
	return f.result, f.err
}

// Done is closed once the work has completed or been rejected.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the result is available without blocking.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
