package testutil

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nhle/ews-client/internal/transport"
)

// CountingBody is a response body that counts how often it is closed and
// can fail partway through reading.
type CountingBody struct {
	r       io.Reader
	readErr error
	closes  atomic.Int32
}

// NewCountingBody returns a body yielding data.
func NewCountingBody(data string) *CountingBody {
	return &CountingBody{r: strings.NewReader(data)}
}

// NewFailingBody returns a body yielding data and then err instead of EOF.
func NewFailingBody(data string, err error) *CountingBody {
	return &CountingBody{r: strings.NewReader(data), readErr: err}
}

func (b *CountingBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if errors.Is(err, io.EOF) && b.readErr != nil {
		return n, b.readErr
	}
	return n, err
}

func (b *CountingBody) Close() error {
	b.closes.Add(1)
	return nil
}

// Closes returns how many times Close was called.
func (b *CountingBody) Closes() int {
	return int(b.closes.Load())
}

// NewResponse builds a response with the given status, content type and body.
func NewResponse(status int, contentType string, body io.ReadCloser) *transport.Response {
	var h transport.Header
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return transport.NewResponse(status, h, body)
}

// FakeSender records requests and answers them with Respond. If Gate is
// non-nil every Send blocks until it is closed.
type FakeSender struct {
	Respond func(req *transport.Request) (*transport.Response, error)
	Gate    chan struct{}

	mu       sync.Mutex
	requests []*transport.Request
}

func (s *FakeSender) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Respond == nil {
		return nil, errors.New("fake sender: no response configured")
	}
	return s.Respond(req)
}

// Requests returns the requests received so far.
func (s *FakeSender) Requests() []*transport.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*transport.Request(nil), s.requests...)
}
