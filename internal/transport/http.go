package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// StatusError is returned for HTTP error statuses whose body is not XML and
// therefore carries no service error to parse.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %s from %s: %s", e.Status, e.URL, e.Body)
	}
	return fmt.Sprintf("unexpected status %s from %s", e.Status, e.URL)
}

// HTTPStatus returns the HTTP status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// IsUnauthorized reports whether the endpoint rejected the credentials.
func (e *StatusError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// maxErrorBody bounds how much of a non-XML error body is kept.
const maxErrorBody = 512

// HTTPOptions configures an HTTPSender.
type HTTPOptions struct {
	Timeout            time.Duration
	HTTP2              bool
	InsecureSkipVerify bool
	Username           string
	Password           string
	UserAgent          string
}

// HTTPSender posts requests to the endpoint over HTTP(S).
type HTTPSender struct {
	httpClient *http.Client
	username   string
	password   string
	userAgent  string
}

// NewHTTPSender creates a sender with its own transport.
func NewHTTPSender(opts HTTPOptions) (*HTTPSender, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 100 * time.Second
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if opts.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test servers
	}
	if opts.HTTP2 {
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, fmt.Errorf("configuring HTTP/2 transport: %w", err)
		}
	}

	return NewHTTPSenderWithClient(&http.Client{Timeout: timeout, Transport: tr}, opts), nil
}

// NewHTTPSenderWithClient uses an existing client, such as one from
// httptest.Server.Client().
func NewHTTPSenderWithClient(client *http.Client, opts HTTPOptions) *HTTPSender {
	return &HTTPSender{
		httpClient: client,
		username:   opts.Username,
		password:   opts.Password,
		userAgent:  opts.UserAgent,
	}
}

// Send posts the request body. A response is returned for any 2xx status
// and for any status with a text/xml body, since the service reports SOAP
// faults with HTTP 500. Other statuses yield a *StatusError.
func (s *HTTPSender) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL(), req.Body())
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	header := req.Header()
	fields := header.Fields()
	for fields.Next() {
		httpReq.Header.Add(fields.Key(), fields.Value())
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "text/xml")
	}
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}
	if s.username != "" {
		httpReq.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request %s %s: %w", req.Operation(), req.URL(), err)
	}

	if (resp.StatusCode >= 200 && resp.StatusCode < 300) || IsXML(resp.Header.Get("Content-Type")) {
		return NewResponse(resp.StatusCode, HeaderFromMap(resp.Header), resp.Body), nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		URL:        req.URL(),
		Body:       strings.TrimSpace(string(body)),
	}
}
