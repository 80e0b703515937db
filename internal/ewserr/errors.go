package ewserr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a failure. The set is closed; callers branch
// on it instead of matching concrete error types.
type Kind int

const (
	// KindService is any remote failure without a dedicated variant.
	KindService Kind = iota
	// KindTransport covers HTTP and IO failures reaching or reading from the service.
	KindTransport
	// KindParse covers non-XML responses and deserialization errors.
	KindParse
	KindPermanentFolderNotFound
	KindPermanentItemNotFound
	KindPermanentNonExistentMailbox
	// KindTypeConversion is raised when a wire value can't be converted to
	// its declared type.
	KindTypeConversion
	// KindArrayValidation is raised when an array value has the wrong shape.
	KindArrayValidation
)

var kindNames = map[Kind]string{
	KindService:                     "service",
	KindTransport:                   "transport",
	KindParse:                       "parse",
	KindPermanentFolderNotFound:     "folder_not_found",
	KindPermanentItemNotFound:       "item_not_found",
	KindPermanentNonExistentMailbox: "non_existent_mailbox",
	KindTypeConversion:              "type_conversion",
	KindArrayValidation:             "array_validation",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsPermanent reports whether the condition won't succeed on retry without
// changing the request.
func (k Kind) IsPermanent() bool {
	switch k {
	case KindPermanentFolderNotFound,
		KindPermanentItemNotFound,
		KindPermanentNonExistentMailbox:
		return true
	}
	return false
}

// ErrNotSupported is returned for operations or value types the client
// can't handle.
var ErrNotSupported = errors.New("not supported")

// Error is the single failure type surfaced by the request core. It carries
// the failure kind, the service error code and details when the failure was
// reported by the server, and the underlying cause.
type Error struct {
	Kind    Kind
	Message string

	// Code is empty unless the service reported the failure.
	Code ServiceError

	// Details holds the server-supplied MessageXml values, if any.
	Details map[string]string

	Err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String() + " failure"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind wrapping err. The message is
// formatted from format and args.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Transport wraps err as a transport failure, keeping the original message.
func Transport(err error) *Error {
	return Wrap(KindTransport, err, "The request failed. %s", err)
}

// Parse wraps err as a parse failure, keeping the original message.
func Parse(err error) *Error {
	return Wrap(KindParse, err, "The response couldn't be parsed. %s", err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err (or any error in its chain) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

// IsPermanent reports whether err is classified as a permanent failure.
func IsPermanent(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.IsPermanent()
}
