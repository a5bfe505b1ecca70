package apperror

const (
	// Client errors (4xx)
	CodeInvalidInput = "INVALID_INPUT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInvalidState = "INVALID_STATE"

	// Admission pipeline terminal codes
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeDeviceTrustFailed = "DEVICE_TRUST_FAILED"
	CodeNoPolicyFound     = "NO_POLICY_FOUND"

	// Admission pipeline non-terminal codes
	CodeFactorEvaluationError = "FACTOR_EVALUATION_ERROR"
	CodeMotionViolation       = "MOTION_VIOLATION"

	// Server errors (5xx)
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
