package ewserr

import (
	"fmt"
	"strings"
)

// ServiceResponseError is a failure reported by the service for a single
// response message or SOAP fault.
type ServiceResponseError struct {
	Code        ServiceError
	MessageText string
	Details     map[string]string
}

// Error formats the server-reported text, enriched with the inner error
// and, for internal server errors, the server-side exception and stack trace.
func (e *ServiceResponseError) Error() string {
	var b strings.Builder
	b.WriteString(e.MessageText)

	innerCode, hasCode := e.Details[DetailInnerErrorResponseCode]
	innerText, hasText := e.Details[DetailInnerErrorMessageText]
	if hasCode && hasText {
		fmt.Fprintf(&b, " (InnerErrorResponseCode: %s, InnerErrorMessageText: %s)", innerCode, innerText)
	}

	if e.Code == ErrorInternalServerError {
		class, hasClass := e.Details[DetailExceptionClass]
		message, hasMessage := e.Details[DetailExceptionMessage]
		stack, hasStack := e.Details[DetailStackTrace]
		if hasClass && hasMessage && hasStack {
			return fmt.Sprintf("%s -- Server Error: %s: %s %s", b.String(), class, message, stack)
		}
	}

	return b.String()
}

// Detail returns the detail value for key and whether it was present.
func (e *ServiceResponseError) Detail(key string) (string, bool) {
	v, ok := e.Details[key]
	return v, ok
}
