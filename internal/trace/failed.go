package trace

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

// FailedRequest captures one failed exchange. Fields are empty for the
// parts that were never produced, such as the response of a request that
// could not be sent.
type FailedRequest struct {
	Operation       string
	URL             string
	RequestHeaders  string
	RequestBody     []byte
	StatusCode      int
	ResponseHeaders string
	ResponseBody    []byte
	Error           string
	FailedAt        time.Time
}

// Recorder persists failed requests.
type Recorder interface {
	Record(ctx context.Context, fr *FailedRequest) error
}

// FailedRequestLogger dumps failed exchanges at warning level and, if a
// Recorder is configured, persists them.
type FailedRequestLogger struct {
	log      logr.Logger
	recorder Recorder
}

// NewFailedRequestLogger logs failures to log and, if recorder is non-nil,
// records them there too.
func NewFailedRequestLogger(log logr.Logger, recorder Recorder) *FailedRequestLogger {
	return &FailedRequestLogger{log: log, recorder: recorder}
}

// Log writes the dump for fr. Recording errors are logged, not returned;
// the caller is already handling a failure.
func (l *FailedRequestLogger) Log(ctx context.Context, fr *FailedRequest) {
	if l == nil || fr == nil {
		return
	}

	warn := func(msg string) {
		l.log.Info(msg, "severity", "warning", "operation", fr.Operation)
	}

	warn("Request to EWS failed. Here is the request trace:")
	at := fr.FailedAt
	if at.IsZero() {
		at = time.Now()
	}

	if fr.RequestHeaders != "" {
		warn(FormatBlock(RequestHTTPHeaders.String(), fr.RequestHeaders, at))
	} else {
		warn("Could not log request headers, since the request hasn't been set.")
	}
	if fr.RequestBody != nil {
		warn(FormatBlock(Request.String(), string(fr.RequestBody), at))
	} else {
		warn("Could not log request body of failed request, since the stream hasn't been set.")
	}
	if fr.ResponseHeaders != "" {
		warn(FormatBlock(ResponseHTTPHeaders.String(), fr.ResponseHeaders, at))
	} else {
		warn("Could not log response headers, since the response hasn't been received.")
	}
	if fr.ResponseBody != nil {
		warn(FormatBlock(Response.String(), string(fr.ResponseBody), at))
	} else {
		warn("Could not log response body of failed request, since the stream hasn't been set.")
	}

	if l.recorder == nil {
		return
	}
	if err := l.recorder.Record(ctx, fr); err != nil {
		l.log.Error(err, "recording failed request", "operation", fr.Operation)
	}
}
