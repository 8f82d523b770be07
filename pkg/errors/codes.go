package errors

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeTimeout            ErrorCode = "COMMON_004"
	ErrCodeValidation         ErrorCode = "COMMON_005"
	ErrCodeSerialization      ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_007"
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_008"
)

// Configuration error codes
const (
	ErrCodeConfigLoad    ErrorCode = "CFG_001"
	ErrCodeConfigInvalid ErrorCode = "CFG_002"
	ErrCodeConfigWatch   ErrorCode = "CFG_003"
)

// Queue error codes
const (
	ErrCodeQueueConnection ErrorCode = "QUE_001"
	ErrCodeQueueTimeout    ErrorCode = "QUE_002"
	ErrCodeQueueClosed     ErrorCode = "QUE_003"
	ErrCodeQueuePayload    ErrorCode = "QUE_004"
	ErrCodeCacheError      ErrorCode = "QUE_005"
	ErrCodeCacheMiss       ErrorCode = "QUE_006"
)

// Document store error codes
const (
	ErrCodeStoreConnection  ErrorCode = "STO_001"
	ErrCodeStoreRequest     ErrorCode = "STO_002"
	ErrCodeStoreIndexing    ErrorCode = "STO_003"
	ErrCodeStoreSchema      ErrorCode = "STO_004"
	ErrCodeStoreBulkPartial ErrorCode = "STO_005"
)

// Inference error codes
const (
	ErrCodeInferenceUnavailable ErrorCode = "INF_001"
	ErrCodeInferenceDisabled    ErrorCode = "INF_002"
	ErrCodeInferenceRequest     ErrorCode = "INF_003"
	ErrCodeInferenceDecode      ErrorCode = "INF_004"
)

// Analysis error codes
const (
	ErrCodeAnalysisFailed ErrorCode = "ABSA_001"
	ErrCodeUnknownFilter  ErrorCode = "ABSA_002"
	ErrCodeEmptyDocument  ErrorCode = "ABSA_003"
)

// Messaging error codes
const (
	ErrCodeMirrorPublish ErrorCode = "MSG_001"
)

const (
	// CodeOK is returned by GetCode for a nil error.
	CodeOK ErrorCode = "OK"
	// CodeUnknown is returned by GetCode when no AppError is in the chain.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// retryableCodes are the failure categories worth another attempt.
var retryableCodes = map[ErrorCode]struct{}{
	ErrCodeTimeout:            {},
	ErrCodeServiceUnavailable: {},
	ErrCodeQueueConnection:    {},
	ErrCodeStoreConnection:    {},
	ErrCodeStoreRequest:       {},
	ErrCodeInferenceRequest:   {},
}

// IsRetryable reports whether the first AppError in err's chain carries a code
// that indicates a transient condition.
func IsRetryable(err error) bool {
	_, ok := retryableCodes[GetCode(err)]
	return ok
}
