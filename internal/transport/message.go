// Package transport defines the wire request and response exchanged with the
// service endpoint and the Sender that moves them.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/emersion/go-message/textproto"
)

// Header is an ordered header map with case-insensitive keys.
type Header = textproto.Header

// XMLContentType is the media type prefix every parseable response carries.
const XMLContentType = "text/xml"

// IsXML reports whether contentType names an XML response body.
func IsXML(contentType string) bool {
	return strings.HasPrefix(contentType, XMLContentType)
}

// Sender delivers a request and returns the raw response. The caller owns
// the returned Response and must Close it.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Request describes one call. It is immutable once built.
type Request struct {
	operation string
	url       string
	header    Header
	body      []byte
}

// NewRequest builds a request by running the body producer once.
func NewRequest(operation, url string, header Header, writeBody func(io.Writer) error) (*Request, error) {
	if url == "" {
		return nil, fmt.Errorf("building %s request: empty endpoint URL", operation)
	}

	var buf bytes.Buffer
	if writeBody != nil {
		if err := writeBody(&buf); err != nil {
			return nil, fmt.Errorf("writing %s request body: %w", operation, err)
		}
	}

	return &Request{
		operation: operation,
		url:       url,
		header:    header.Copy(),
		body:      buf.Bytes(),
	}, nil
}

// Operation returns the logical operation name, used for tracing.
func (r *Request) Operation() string { return r.operation }

// URL returns the target endpoint.
func (r *Request) URL() string { return r.url }

// Header returns a copy of the request header.
func (r *Request) Header() Header { return r.header.Copy() }

// Body returns a fresh reader over the request body.
func (r *Request) Body() io.Reader { return bytes.NewReader(r.body) }

// BodyBytes returns a copy of the request body.
func (r *Request) BodyBytes() []byte { return bytes.Clone(r.body) }

// Response is a raw service response. Its body is closed exactly once, no
// matter how many times Close is called.
type Response struct {
	StatusCode  int
	ContentType string
	Header      Header

	body      io.ReadCloser
	closeOnce sync.Once
	closeErr  error
}

// NewResponse wraps body. The content type is taken from header.
func NewResponse(statusCode int, header Header, body io.ReadCloser) *Response {
	if body == nil {
		body = io.NopCloser(bytes.NewReader(nil))
	}
	return &Response{
		StatusCode:  statusCode,
		ContentType: header.Get("Content-Type"),
		Header:      header,
		body:        body,
	}
}

// Body returns the live body stream.
func (r *Response) Body() io.Reader { return r.body }

// Close closes the body stream.
func (r *Response) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.body.Close()
	})
	return r.closeErr
}

// Field is one header line.
type Field struct {
	Key   string
	Value string
}

// NewHeader builds a Header whose Fields iterate in the order given.
// textproto.Header.Add places each field before the ones already present,
// so fields are added back to front.
func NewHeader(fields ...Field) Header {
	var h Header
	for i := len(fields) - 1; i >= 0; i-- {
		h.Add(fields[i].Key, fields[i].Value)
	}
	return h
}

// HeaderFromMap builds a Header from a multi-valued map. Keys come out in
// sorted order and each key keeps the order of its values.
func HeaderFromMap(m map[string][]string) Header {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []Field
	for _, k := range keys {
		for _, v := range m[k] {
			fields = append(fields, Field{Key: k, Value: v})
		}
	}
	return NewHeader(fields...)
}

// FormatHeader renders h one field per line, in order.
func FormatHeader(h Header) string {
	var b strings.Builder
	fields := h.Fields()
	for fields.Next() {
		fmt.Fprintf(&b, "%s: %s\n", fields.Key(), fields.Value())
	}
	return b.String()
}
