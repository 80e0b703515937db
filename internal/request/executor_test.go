package request

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ews-client/internal/async"
	"github.com/nhle/ews-client/internal/ewserr"
	"github.com/nhle/ews-client/internal/metrics"
	"github.com/nhle/ews-client/internal/soap"
	"github.com/nhle/ews-client/internal/trace"
	"github.com/nhle/ews-client/internal/transport"
	"github.com/nhle/ews-client/tests/testutil"
)

const endpoint = "https://mail.example.com/EWS/Exchange.asmx"

const folderResponse = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <m:GetFolderResponse xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
      <m:ResponseMessages>
        <m:GetFolderResponseMessage ResponseClass="Success">
          <m:ResponseCode>NoError</m:ResponseCode>
        </m:GetFolderResponseMessage>
      </m:ResponseMessages>
    </m:GetFolderResponse>
  </s:Body>
</s:Envelope>`

const folderNotFoundResponse = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <m:GetFolderResponse xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
      <m:ResponseMessages>
        <m:GetFolderResponseMessage ResponseClass="Error">
          <m:MessageText>The specified folder could not be found in the store.</m:MessageText>
          <m:ResponseCode>ErrorFolderNotFound</m:ResponseCode>
          <m:DescriptiveLinkKey>0</m:DescriptiveLinkKey>
        </m:GetFolderResponseMessage>
      </m:ResponseMessages>
    </m:GetFolderResponse>
  </s:Body>
</s:Envelope>`

const serverBusyFault = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <s:Fault>
      <faultcode>s:Server</faultcode>
      <faultstring>The server cannot service this request right now.</faultstring>
      <detail>
        <e:ResponseCode xmlns:e="http://schemas.microsoft.com/exchange/services/2006/errors">ErrorServerBusy</e:ResponseCode>
        <e:Message xmlns:e="http://schemas.microsoft.com/exchange/services/2006/errors">The server cannot service this request right now.</e:Message>
      </detail>
    </s:Fault>
  </s:Body>
</s:Envelope>`

func getFolder() *soap.RawOperation {
	return &soap.RawOperation{
		Operation: "GetFolder",
		Body:      []byte(`<m:GetFolder><m:FolderShape><t:BaseShape>IdOnly</t:BaseShape></m:FolderShape></m:GetFolder>`),
	}
}

func respondWith(status int, contentType, body string) (*testutil.FakeSender, *[]*testutil.CountingBody) {
	var mu sync.Mutex
	bodies := &[]*testutil.CountingBody{}
	sender := &testutil.FakeSender{
		Respond: func(*transport.Request) (*transport.Response, error) {
			b := testutil.NewCountingBody(body)
			mu.Lock()
			*bodies = append(*bodies, b)
			mu.Unlock()
			return testutil.NewResponse(status, contentType, b), nil
		},
	}
	return sender, bodies
}

type traceEntry struct {
	traceType string
	message   string
	isError   bool
}

type recordingListener struct {
	mu      sync.Mutex
	entries []traceEntry
}

func (l *recordingListener) Trace(traceType, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, traceEntry{traceType, message, false})
}

func (l *recordingListener) Error(traceType, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, traceEntry{traceType, message, true})
}

func (l *recordingListener) byType(traceType string) []traceEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []traceEntry
	for _, e := range l.entries {
		if e.traceType == traceType {
			out = append(out, e)
		}
	}
	return out
}

func newExecutor(t *testing.T, sender transport.Sender, opts ...Option) *Executor {
	t.Helper()
	e, err := NewExecutor(endpoint, sender, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestNewExecutorRequiresEndpointAndSender(t *testing.T) {
	_, err := NewExecutor("", &testutil.FakeSender{})
	assert.Error(t, err)

	_, err = NewExecutor(endpoint, nil)
	assert.Error(t, err)
}

func TestExecuteSuccess(t *testing.T) {
	sender, bodies := respondWith(http.StatusOK, "text/xml; charset=utf-8", folderResponse)
	e := newExecutor(t, sender, WithHeader("X-AnchorMailbox", "alice@example.com"))

	result, err := Execute(context.Background(), e, getFolder())
	require.NoError(t, err)

	assert.Equal(t, "GetFolderResponse", result.Operation)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, soap.ResponseSuccess, result.Messages[0].Class)

	requests := sender.Requests()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, endpoint, req.URL())
	assert.Equal(t, "GetFolder", req.Operation())
	assert.Contains(t, string(req.BodyBytes()), "<soap:Body><m:GetFolder>")

	h := req.Header()
	assert.Equal(t, "alice@example.com", h.Get("X-AnchorMailbox"))
	assert.Equal(t, "true", h.Get(HeaderReturnClientRequestID))
	_, err = uuid.Parse(h.Get(HeaderClientRequestID))
	assert.NoError(t, err)

	require.Len(t, *bodies, 1)
	assert.Equal(t, 1, (*bodies)[0].Closes())
}

func TestExecuteNonXMLResponse(t *testing.T) {
	body := "<html><body>Service Unavailable</body></html>\r\n<p>more</p>"
	sender, bodies := respondWith(http.StatusOK, "text/html; charset=utf-8", body)
	listener := &recordingListener{}
	e := newExecutor(t, sender, WithTracer(trace.NewTracer(trace.All, listener)))

	_, err := Execute(context.Background(), e, getFolder())

	var ewsErr *ewserr.Error
	require.True(t, errors.As(err, &ewsErr))
	assert.Equal(t, ewserr.KindParse, ewsErr.Kind)
	assert.Equal(t, "The response received from the service didn't contain valid XML.", ewsErr.Error())

	errs := listener.byType("EwsResponse")
	require.Len(t, errs, 1)
	assert.True(t, errs[0].isError)
	assert.Contains(t, errs[0].message, "<html><body>Service Unavailable</body></html>'")
	assert.NotContains(t, errs[0].message, "more")

	// The body was never handed to the XML reader, so headers were not traced either.
	assert.Empty(t, listener.byType("EwsResponseHttpHeaders"))
	assert.Equal(t, 1, (*bodies)[0].Closes())
}

func TestExecuteMissingContentType(t *testing.T) {
	sender, _ := respondWith(http.StatusOK, "", folderResponse)
	e := newExecutor(t, sender)

	_, err := Execute(context.Background(), e, getFolder())
	assert.True(t, ewserr.IsKind(err, ewserr.KindParse))
}

func TestBufferedAndStreamedReadsAgree(t *testing.T) {
	for _, body := range []string{folderResponse, folderNotFoundResponse} {
		streamSender, _ := respondWith(http.StatusOK, "text/xml", body)
		streamed, streamErr := Execute(context.Background(), newExecutor(t, streamSender), getFolder())

		listener := &recordingListener{}
		bufSender, _ := respondWith(http.StatusOK, "text/xml", body)
		buffered, bufErr := Execute(context.Background(),
			newExecutor(t, bufSender, WithTracer(trace.NewTracer(trace.Response, listener))),
			getFolder())

		require.NoError(t, streamErr)
		require.NoError(t, bufErr)
		if diff := cmp.Diff(streamed, buffered); diff != "" {
			t.Errorf("streamed and buffered results differ (-streamed +buffered):\n%s", diff)
		}

		traced := listener.byType("EwsResponse")
		require.Len(t, traced, 1)
		assert.Contains(t, traced[0].message, strings.TrimSpace(body))
	}
}

func TestExecuteTracesRequest(t *testing.T) {
	sender, _ := respondWith(http.StatusOK, "text/xml", folderResponse)
	listener := &recordingListener{}
	e := newExecutor(t, sender, WithTracer(trace.NewTracer(trace.RequestHTTPHeaders|trace.Request, listener)))

	_, err := Execute(context.Background(), e, getFolder())
	require.NoError(t, err)

	headers := listener.byType("EwsRequestHttpHeaders")
	require.Len(t, headers, 1)
	assert.Contains(t, strings.ToLower(headers[0].message), "client-request-id: ")

	bodies := listener.byType("EwsRequest")
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0].message, "<m:GetFolder>")

	assert.Empty(t, listener.byType("EwsResponse"))
}

// tracedHeaderKeys returns the header names of a trace block, in order.
func tracedHeaderKeys(block string) []string {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	var keys []string
	for _, line := range lines[1 : len(lines)-1] {
		key, _, _ := strings.Cut(line, ":")
		keys = append(keys, key)
	}
	return keys
}

func TestExecuteTracesHeadersInOrder(t *testing.T) {
	sender := &testutil.FakeSender{
		Respond: func(*transport.Request) (*transport.Response, error) {
			h := transport.NewHeader(
				transport.Field{Key: "Content-Type", Value: "text/xml; charset=utf-8"},
				transport.Field{Key: "Date", Value: "Mon, 02 Jan 2006 15:04:05 GMT"},
				transport.Field{Key: "Server", Value: "Microsoft-IIS/10.0"},
			)
			return transport.NewResponse(http.StatusOK, h, testutil.NewCountingBody(folderResponse)), nil
		},
	}
	listener := &recordingListener{}
	e := newExecutor(t, sender,
		WithTracer(trace.NewTracer(trace.RequestHTTPHeaders|trace.ResponseHTTPHeaders, listener)),
		WithHeader("X-AnchorMailbox", "alice@example.com"),
		WithHeader("Accept", "application/json"),
	)

	_, err := Execute(context.Background(), e, getFolder())
	require.NoError(t, err)

	requestHeaders := listener.byType("EwsRequestHttpHeaders")
	require.Len(t, requestHeaders, 1)
	wantRequest := []string{"Content-Type", "Accept", "Client-Request-Id", "Return-Client-Request-Id", "X-Anchormailbox"}
	if diff := cmp.Diff(wantRequest, tracedHeaderKeys(requestHeaders[0].message)); diff != "" {
		t.Errorf("request header order mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, requestHeaders[0].message, "Accept: text/xml\n")

	responseHeaders := listener.byType("EwsResponseHttpHeaders")
	require.Len(t, responseHeaders, 1)
	wantResponse := []string{"Content-Type", "Date", "Server"}
	if diff := cmp.Diff(wantResponse, tracedHeaderKeys(responseHeaders[0].message)); diff != "" {
		t.Errorf("response header order mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteClosesOnParseFailure(t *testing.T) {
	truncated := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><m:GetFolderResponse><m:ResponseMessages>`

	for _, flags := range []trace.Flag{trace.None, trace.Response} {
		t.Run(flags.String(), func(t *testing.T) {
			sender, bodies := respondWith(http.StatusOK, "text/xml", truncated)
			e := newExecutor(t, sender, WithTracer(trace.NewTracer(flags, &recordingListener{})))

			_, err := Execute(context.Background(), e, getFolder())
			assert.True(t, ewserr.IsKind(err, ewserr.KindParse), "got %v", err)
			assert.Equal(t, 1, (*bodies)[0].Closes())
		})
	}
}

func TestExecuteReadFailureIsTransport(t *testing.T) {
	partial := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>`
	reset := errors.New("connection reset by peer")

	for _, flags := range []trace.Flag{trace.None, trace.Response} {
		t.Run(flags.String(), func(t *testing.T) {
			body := testutil.NewFailingBody(partial, reset)
			sender := &testutil.FakeSender{Respond: func(*transport.Request) (*transport.Response, error) {
				return testutil.NewResponse(http.StatusOK, "text/xml", body), nil
			}}
			e := newExecutor(t, sender, WithTracer(trace.NewTracer(flags, &recordingListener{})))

			_, err := Execute(context.Background(), e, getFolder())
			assert.True(t, ewserr.IsKind(err, ewserr.KindTransport), "got %v", err)
			assert.ErrorIs(t, err, reset)
			assert.Equal(t, 1, body.Closes())
		})
	}
}

func TestExecuteSendFailure(t *testing.T) {
	cause := &url.Error{Op: "Post", URL: endpoint, Err: errors.New("dial tcp: connection refused")}
	sender := &testutil.FakeSender{Respond: func(*transport.Request) (*transport.Response, error) {
		return nil, cause
	}}
	e := newExecutor(t, sender)

	_, err := Execute(context.Background(), e, getFolder())

	var ewsErr *ewserr.Error
	require.True(t, errors.As(err, &ewsErr))
	assert.Equal(t, ewserr.KindTransport, ewsErr.Kind)
	assert.True(t, strings.HasPrefix(ewsErr.Error(), "The request failed. "))
	assert.ErrorIs(t, err, cause)
}

func TestExecuteValidationFailure(t *testing.T) {
	sender, _ := respondWith(http.StatusOK, "text/xml", folderResponse)
	e := newExecutor(t, sender)

	op := &soap.RawOperation{Operation: "GetFolder"}
	_, err := Execute(context.Background(), e, op)

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.True(t, ewserr.IsKind(err, ewserr.KindService))
	assert.Empty(t, sender.Requests())
}

func TestExecuteServiceErrorPropagates(t *testing.T) {
	sender, bodies := respondWith(http.StatusOK, "text/xml", folderNotFoundResponse)
	e := newExecutor(t, sender)

	op := getFolder()
	op.ThrowOnError = true
	result, err := Execute(context.Background(), e, op)

	var sre *ewserr.ServiceResponseError
	require.True(t, errors.As(err, &sre))
	assert.Equal(t, ewserr.ErrorFolderNotFound, sre.Code)
	require.NotNil(t, result)
	assert.Len(t, result.Messages, 1)
	assert.True(t, ewserr.IsPermanent(ewserr.Translate(err)))
	assert.Equal(t, 1, (*bodies)[0].Closes())
}

func TestExecuteSOAPFault(t *testing.T) {
	sender, _ := respondWith(http.StatusInternalServerError, "text/xml; charset=utf-8", serverBusyFault)
	e := newExecutor(t, sender)

	_, err := Execute(context.Background(), e, getFolder())

	var sre *ewserr.ServiceResponseError
	require.True(t, errors.As(err, &sre))
	assert.Equal(t, ewserr.ErrorServerBusy, sre.Code)
	assert.True(t, ewserr.IsKind(ewserr.Translate(err), ewserr.KindService))
}

func TestReadResponse(t *testing.T) {
	e := newExecutor(t, &testutil.FakeSender{})
	body := testutil.NewCountingBody(folderResponse)

	result, err := ReadResponse(e, nil, testutil.NewResponse(http.StatusOK, "text/xml; charset=utf-8", body), getFolder())
	require.NoError(t, err)
	assert.Len(t, result.Messages, 1)
	assert.Equal(t, 1, body.Closes())
}

func TestBeginEndExecute(t *testing.T) {
	sender, bodies := respondWith(http.StatusOK, "text/xml", folderResponse)
	e := newExecutor(t, sender)

	type outcome struct {
		state  any
		result *soap.Result
		err    error
	}
	done := make(chan outcome, 1)

	h, err := BeginExecute(context.Background(), e, getFolder(), func(h *AsyncHandle[*soap.Result]) {
		assert.True(t, h.IsCompleted())
		result, err := EndExecute(h)
		done <- outcome{h.State(), result, err}
	}, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "GetFolder", h.Request().Operation())

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.Equal(t, "state-1", got.state)
		assert.Len(t, got.result.Messages, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not invoked")
	}
	assert.Equal(t, 1, (*bodies)[0].Closes())
}

func TestBeginExecuteWithoutCallback(t *testing.T) {
	sender, _ := respondWith(http.StatusOK, "text/xml", folderResponse)
	e := newExecutor(t, sender)

	h, err := BeginExecute(context.Background(), e, getFolder(), nil, nil)
	require.NoError(t, err)

	result, err := EndExecute(h)
	require.NoError(t, err)
	assert.Len(t, result.Messages, 1)
	assert.Nil(t, h.State())
}

func TestBeginExecuteValidatesEagerly(t *testing.T) {
	sender, _ := respondWith(http.StatusOK, "text/xml", folderResponse)
	e := newExecutor(t, sender)

	called := make(chan struct{}, 1)
	h, err := BeginExecute(context.Background(), e, &soap.RawOperation{Operation: "GetFolder", Body: []byte("<open>")},
		func(*AsyncHandle[*soap.Result]) { called <- struct{}{} }, nil)

	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, sender.Requests())

	select {
	case <-called:
		t.Fatal("callback invoked for a request that was never submitted")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBeginExecuteIgnoresCallerCancellation(t *testing.T) {
	gate := make(chan struct{})
	sender, _ := respondWith(http.StatusOK, "text/xml", folderResponse)
	sender.Gate = gate
	e := newExecutor(t, sender)

	ctx, cancel := context.WithCancel(context.Background())
	h, err := BeginExecute(ctx, e, getFolder(), nil, nil)
	require.NoError(t, err)

	cancel()
	close(gate)

	_, err = EndExecute(h)
	assert.NoError(t, err)
}

func TestEndExecuteSaturatedPool(t *testing.T) {
	gate := make(chan struct{})
	sender, _ := respondWith(http.StatusOK, "text/xml", folderResponse)
	sender.Gate = gate
	e := newExecutor(t, sender)

	// One core worker, one queued task and four surplus workers fit.
	capacity := async.MaxWorkers + async.QueueCapacity
	handles := make([]*AsyncHandle[*soap.Result], 0, capacity+1)
	for i := 0; i <= capacity; i++ {
		h, err := BeginExecute(context.Background(), e, getFolder(), nil, i)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	rejected := handles[capacity]
	assert.True(t, rejected.IsCompleted())
	_, err := EndExecute(rejected)
	assert.True(t, ewserr.IsKind(err, ewserr.KindTransport), "got %v", err)
	assert.ErrorIs(t, err, async.ErrSaturated)

	close(gate)
	for _, h := range handles[:capacity] {
		_, err := EndExecute(h)
		assert.NoError(t, err)
	}
}

func TestFailedRequestIsJournaled(t *testing.T) {
	j := testutil.NewTestJournal(t)
	sender, _ := respondWith(http.StatusOK, "text/xml", folderNotFoundResponse)
	e := newExecutor(t, sender,
		WithFailedRequestLogger(trace.NewFailedRequestLogger(logr.Discard(), j)))

	op := getFolder()
	op.ThrowOnError = true
	_, err := Execute(context.Background(), e, op)
	require.Error(t, err)

	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, "GetFolder", got.Operation)
	assert.Equal(t, endpoint, got.URL)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Contains(t, got.RequestBody, "<m:GetFolder>")
	assert.Contains(t, strings.ToLower(got.RequestHeaders), "client-request-id")
	assert.Equal(t, folderNotFoundResponse, got.ResponseBody)
	assert.Contains(t, got.ResponseHeaders, "text/xml")
	assert.Contains(t, got.Error, "could not be found")
}

func TestSuccessfulRequestIsNotJournaled(t *testing.T) {
	j := testutil.NewTestJournal(t)
	sender, _ := respondWith(http.StatusOK, "text/xml", folderResponse)
	e := newExecutor(t, sender,
		WithFailedRequestLogger(trace.NewFailedRequestLogger(logr.Discard(), j)))

	_, err := Execute(context.Background(), e, getFolder())
	require.NoError(t, err)

	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecuteRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	ok, _ := respondWith(http.StatusOK, "text/xml", folderResponse)
	_, err = Execute(context.Background(), newExecutor(t, ok, WithMetrics(m)), getFolder())
	require.NoError(t, err)

	notXML, _ := respondWith(http.StatusOK, "text/plain", "nope")
	_, err = Execute(context.Background(), newExecutor(t, notXML, WithMetrics(m)), getFolder())
	require.Error(t, err)

	notFound, _ := respondWith(http.StatusOK, "text/xml", folderNotFoundResponse)
	op := getFolder()
	op.ThrowOnError = true
	_, err = Execute(context.Background(), newExecutor(t, notFound, WithMetrics(m)), op)
	require.Error(t, err)

	want := `
# HELP ews_requests_total Count of executed requests by operation and outcome.
# TYPE ews_requests_total counter
ews_requests_total{operation="GetFolder",outcome="folder_not_found"} 1
ews_requests_total{operation="GetFolder",outcome="parse"} 1
ews_requests_total{operation="GetFolder",outcome="success"} 1
`
	assert.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(want), "ews_requests_total"))
}
