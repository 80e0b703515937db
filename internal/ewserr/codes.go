package ewserr

// ServiceError is a remote error code as reported in a ResponseCode element.
type ServiceError string

// Codes the client branches on. Any other code reported by the service is
// still carried verbatim and classified as a generic service failure.
const (
	NoError                           ServiceError = "NoError"
	ErrorAccessDenied                 ServiceError = "ErrorAccessDenied"
	ErrorFolderNotFound               ServiceError = "ErrorFolderNotFound"
	ErrorInternalServerError          ServiceError = "ErrorInternalServerError"
	ErrorInternalServerTransientError ServiceError = "ErrorInternalServerTransientError"
	ErrorInvalidIDMalformed           ServiceError = "ErrorInvalidIdMalformed"
	ErrorInvalidRequest               ServiceError = "ErrorInvalidRequest"
	ErrorItemNotFound                 ServiceError = "ErrorItemNotFound"
	ErrorMailboxStoreUnavailable      ServiceError = "ErrorMailboxStoreUnavailable"
	ErrorNonExistentMailbox           ServiceError = "ErrorNonExistentMailbox"
	ErrorSchemaValidation             ServiceError = "ErrorSchemaValidation"
	ErrorServerBusy                   ServiceError = "ErrorServerBusy"
	ErrorTimeoutExpired               ServiceError = "ErrorTimeoutExpired"
)

// Keys of the server-supplied error details.
const (
	DetailExceptionClass         = "ExceptionClass"
	DetailExceptionMessage       = "ExceptionMessage"
	DetailStackTrace             = "StackTrace"
	DetailInnerErrorResponseCode = "InnerErrorResponseCode"
	DetailInnerErrorMessageText  = "InnerErrorMessageText"
)
