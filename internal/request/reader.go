package request

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nhle/ews-client/internal/ewserr"
	"github.com/nhle/ews-client/internal/soap"
	"github.com/nhle/ews-client/internal/trace"
	"github.com/nhle/ews-client/internal/transport"
)

// maxFirstLine bounds how much of a non-XML body is read for diagnostics.
const maxFirstLine = 4096

// ReadResponse checks that resp is XML, traces it, and decodes it with op.
// resp is closed before ReadResponse returns.
func ReadResponse[T any](e *Executor, req *transport.Request, resp *transport.Response, op Operation[T]) (T, error) {
	x := e.newExchange(op.Name())
	x.request = req
	return readResponse(e, x, resp, op)
}

func readResponse[T any](e *Executor, x *exchange, resp *transport.Response, op Operation[T]) (T, error) {
	var zero T
	defer resp.Close()
	x.response = resp

	if !transport.IsXML(resp.ContentType) {
		line := firstLine(resp.Body())
		x.responseBody = []byte(line)
		e.tracer.EmitError(trace.Response,
			fmt.Sprintf("Response content type %q not XML; first line: '%s'", resp.ContentType, line))
		return zero, ewserr.New(ewserr.KindParse, "The response received from the service didn't contain valid XML.")
	}

	e.tracer.EmitHeaders(trace.ResponseHTTPHeaders, resp.Header)

	body := &trackingReader{r: resp.Body()}
	var src io.Reader = body
	if e.tracer.Enabled(trace.Response) || e.failed != nil {
		data, err := io.ReadAll(body)
		x.responseBody = data
		if err != nil {
			return zero, ewserr.Transport(err)
		}
		e.tracer.EmitBody(trace.Response, data)
		src = bytes.NewReader(data)
	}

	result, err := op.ReadResponse(soap.NewReader(src))
	if err != nil {
		return result, classifyReadError(err, body.err)
	}
	return result, nil
}

// classifyReadError keeps failures the operation already classified,
// reports a failed body read as transport, and treats the rest as
// malformed responses.
func classifyReadError(err, readErr error) error {
	var classified *ewserr.Error
	var sre *ewserr.ServiceResponseError
	switch {
	case errors.As(err, &classified), errors.As(err, &sre):
		return err
	case readErr != nil:
		return ewserr.Transport(err)
	default:
		return ewserr.Parse(err)
	}
}

func firstLine(r io.Reader) string {
	line, _ := bufio.NewReader(io.LimitReader(r, maxFirstLine)).ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// trackingReader remembers the first read failure other than EOF, so
// decoder errors caused by a broken stream can be told apart from
// malformed documents.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}
