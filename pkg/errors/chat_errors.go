package errors

var (
	// 均非致命错误：调用方记录日志后降级处理
	ErrTransportUnavailable = New(CodeTransportUnavailable, "transport is not connected")
	ErrHistoryFetchFailed   = New(CodeHistoryFetchFailed, "history fetch failed")
	ErrDirectoryLookup      = New(CodeDirectoryLookupFailed, "directory lookup failed")
	ErrInvalidSend          = New(CodeInvalidSend, "message body is empty")
	ErrInvalidEvent         = New(CodeInvalidEvent, "invalid wire event")
	ErrSessionClosed        = New(CodeFailedPrecondition, "session is closed")
	ErrAlreadyRegistered    = New(CodeAlreadyRegistered, "connection already registered with a different participant")
)

func ErrHistory(cause error) error {
	return Wrap(CodeHistoryFetchFailed, "history fetch failed", cause)
}

func ErrDirectory(cause error) error {
	return Wrap(CodeDirectoryLookupFailed, "directory lookup failed", cause)
}

func ErrEvent(cause error) error {
	return Wrap(CodeInvalidEvent, "invalid wire event", cause)
}

func ErrTransport(cause error) error {
	return Wrap(CodeTransportUnavailable, "transport unavailable", cause)
}
