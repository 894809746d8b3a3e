// Package errors provides the structured error type shared by the release
// tooling: a string code, an optional cause, retry classification and
// key/value context for log output.
package errors

// ErrorCode classifies a failure. Codes are strings so they read well in
// structured logs and the run journal.
type ErrorCode string

// Input and configuration.
const (
	// CodeInvalidInput is a bad CLI argument or malformed value.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	// CodeInvalidConfig is a configuration file or option that cannot work.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"
	// CodeSchemaFailed is a release manifest that failed schema validation.
	CodeSchemaFailed ErrorCode = "SCHEMA_VALIDATION_FAILED"
)

// Remote services: the release registry, object storage, GitHub and EAS.
const (
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeDatabase     ErrorCode = "DATABASE_ERROR"
	CodeNetwork      ErrorCode = "NETWORK_ERROR"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
)

// Release pipeline stages.
const (
	// CodeBuildFailed is a local or remote build that produced no artifact.
	CodeBuildFailed ErrorCode = "BUILD_FAILED"
	// CodeUploadFailed is an artifact that did not reach object storage.
	CodeUploadFailed ErrorCode = "UPLOAD_FAILED"
	// CodePublishFailed is a release row that could not be written.
	CodePublishFailed ErrorCode = "PUBLISH_FAILED"
	// CodeSubmitFailed is a store submission that EAS rejected.
	CodeSubmitFailed ErrorCode = "SUBMIT_FAILED"
	// CodeExecutionFailed is an external command or response that failed
	// in a way no other code describes.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"
)

const (
	CodeInternal ErrorCode = "INTERNAL_ERROR"
	// CodeUnknown is returned by GetCode for errors without a code.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// retryableCodes are transient. New errors carrying them start out retryable.
var retryableCodes = map[ErrorCode]bool{
	CodeNetwork:     true,
	CodeTimeout:     true,
	CodeRateLimit:   true,
	CodeUnavailable: true,
}
