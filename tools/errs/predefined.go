package errs

// Error taxonomy of the messaging core. Authentication failures are fatal
// to the connection; everything else is recovered at the operation
// boundary and returned to the originating connection as an error event.
const (
	CodeServerInternal     = 1000
	CodeUnauthorized       = 1101
	CodeForbidden          = 1102
	CodeInvalidArgument    = 1201
	CodeNotFound           = 1404
	CodeRateLimited        = 1429
	CodeStorageUnavailable = 1503
)

var (
	ErrServerInternal     = NewCodeError(CodeServerInternal, "internal error")
	ErrUnauthorized       = NewCodeError(CodeUnauthorized, "unauthorized")
	ErrForbidden          = NewCodeError(CodeForbidden, "forbidden")
	ErrInvalidArgument    = NewCodeError(CodeInvalidArgument, "invalid argument")
	ErrNotFound           = NewCodeError(CodeNotFound, "not found")
	ErrRateLimited        = NewCodeError(CodeRateLimited, "rate limited")
	ErrStorageUnavailable = NewCodeError(CodeStorageUnavailable, "storage unavailable")
)
