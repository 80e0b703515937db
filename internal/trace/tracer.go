package trace

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nhle/ews-client/internal/transport"
)

// Tracer filters trace output by flag before handing it to a Listener.
// A nil *Tracer traces nothing.
type Tracer struct {
	flags    Flag
	listener Listener
	now      func() time.Time
}

// NewTracer returns a tracer emitting the parts selected by flags.
func NewTracer(flags Flag, listener Listener) *Tracer {
	return &Tracer{flags: flags, listener: listener, now: time.Now}
}

// Enabled reports whether f is traced.
func (t *Tracer) Enabled(f Flag) bool {
	return t != nil && t.listener != nil && t.flags.Has(f)
}

// Flags returns the enabled parts, or None for a nil tracer.
func (t *Tracer) Flags() Flag {
	if t == nil {
		return None
	}
	return t.flags
}

// Emit sends message unformatted if f is enabled.
func (t *Tracer) Emit(f Flag, message string) {
	if t.Enabled(f) {
		t.listener.Trace(f.String(), message)
	}
}

// EmitError sends message at error severity. Error output is not filtered
// by flag.
func (t *Tracer) EmitError(f Flag, message string) {
	if t != nil && t.listener != nil {
		t.listener.Error(f.String(), message)
	}
}

// EmitHeaders sends a labeled block with one header per line.
func (t *Tracer) EmitHeaders(f Flag, h transport.Header) {
	if !t.Enabled(f) {
		return
	}
	t.listener.Trace(f.String(), FormatBlock(f.String(), transport.FormatHeader(h), t.now()))
}

// EmitBody sends a labeled block holding body verbatim.
func (t *Tracer) EmitBody(f Flag, body []byte) {
	if !t.Enabled(f) {
		return
	}
	t.listener.Trace(f.String(), FormatBlock(f.String(), string(body), t.now()))
}

// FormatBlock wraps content in a Trace element tagged with traceType.
func FormatBlock(traceType, content string, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<Trace Tag=%q Time=%q Size=%q>\n",
		traceType, at.UTC().Format(time.RFC3339), humanize.Bytes(uint64(len(content))))
	b.WriteString(strings.TrimRight(content, "\r\n"))
	b.WriteString("\n</Trace>\n")
	return b.String()
}
