package ewserr

import (
	"errors"
	"net"
	"net/url"
)

// HTTPError is implemented by transport-level failures that carry an HTTP
// status, such as a 401 from the endpoint.
type HTTPError interface {
	error
	HTTPStatus() int
}

// Translate classifies err into an *Error. It never returns nil for a
// non-nil err:
//
//   - service failures with a folder-not-found, item-not-found or
//     non-existent-mailbox code become the matching permanent kind;
//     other codes become KindService,
//   - HTTP and network failures become KindTransport,
//   - errors that are already classified keep their kind,
//   - anything else becomes KindService with err as the cause.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var sre *ServiceResponseError
	if errors.As(err, &sre) {
		return &Error{
			Kind:    kindForCode(sre.Code),
			Message: sre.Error(),
			Code:    sre.Code,
			Details: sre.Details,
			Err:     err,
		}
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if isTransport(err) {
		return Transport(err)
	}

	return &Error{Kind: KindService, Message: err.Error(), Err: err}
}

func kindForCode(code ServiceError) Kind {
	switch code {
	case ErrorFolderNotFound:
		return KindPermanentFolderNotFound
	case ErrorItemNotFound:
		return KindPermanentItemNotFound
	case ErrorNonExistentMailbox:
		return KindPermanentNonExistentMailbox
	}
	return KindService
}

func isTransport(err error) bool {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
