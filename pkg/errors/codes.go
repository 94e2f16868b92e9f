package errors

type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInternal              Code = "INTERNAL"
	CodeFailedPrecondition    Code = "FAILED_PRECONDITION"
	CodeTransportUnavailable  Code = "TRANSPORT_UNAVAILABLE"
	CodeHistoryFetchFailed    Code = "HISTORY_FETCH_FAILED"
	CodeDirectoryLookupFailed Code = "DIRECTORY_LOOKUP_FAILED"
	CodeInvalidSend           Code = "INVALID_SEND"
	CodeInvalidEvent          Code = "INVALID_EVENT"
	CodeAlreadyRegistered     Code = "ALREADY_REGISTERED"
)
