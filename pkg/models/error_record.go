package models

import "time"

// ErrorType classifies a recorded failure. Provider failure types are
// derived from the raw error text by keyword matching; marker types are
// appended by the remediation policy to record the action it took and
// are never treated as fresh failures; phase types record failures of
// the classification, planning and synthesis collaborators.
type ErrorType string

const (
	// Provider failure types, in classification priority order.
	ErrorTypeNetwork      ErrorType = "NETWORK_ERROR"
	ErrorTypeRateLimit    ErrorType = "RATE_LIMIT_ERROR"
	ErrorTypeAuth         ErrorType = "AUTH_ERROR"
	ErrorTypeInvalidInput ErrorType = "INVALID_INPUT"
	ErrorTypeAgent        ErrorType = "AGENT_ERROR"
	ErrorTypeLLM          ErrorType = "LLM_ERROR"
	ErrorTypeUnknown      ErrorType = "UNKNOWN_ERROR"

	// Remediation markers.
	ErrorTypeRetryAttempt     ErrorType = "RETRY_ATTEMPT"
	ErrorTypeReplanTriggered  ErrorType = "REPLAN_TRIGGERED"
	ErrorTypeTaskSkipped      ErrorType = "TASK_SKIPPED"
	ErrorTypeForcedCompletion ErrorType = "FORCED_COMPLETION"

	// Phase boundary failures.
	ErrorTypeClassification ErrorType = "CLASSIFICATION_ERROR"
	ErrorTypePlanning       ErrorType = "PLANNING_ERROR"
	ErrorTypeSynthesis      ErrorType = "SYNTHESIS_ERROR"
)

// IsProviderFailure reports whether the type is one of the classified
// task dispatch failures, as opposed to a marker or phase record.
func (e ErrorType) IsProviderFailure() bool {
	switch e {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeAuth,
		ErrorTypeInvalidInput, ErrorTypeAgent, ErrorTypeLLM, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// IsMarker reports whether the type is a remediation provenance marker.
func (e ErrorType) IsMarker() bool {
	switch e {
	case ErrorTypeRetryAttempt, ErrorTypeReplanTriggered,
		ErrorTypeTaskSkipped, ErrorTypeForcedCompletion:
		return true
	default:
		return false
	}
}

// ErrorRecord is one entry of the chronological error log. Records are
// immutable once appended, except RetryCount which the retry action
// increments in place on the referenced record.
type ErrorRecord struct {
	TaskID       string    `json:"task_id"`
	Agent        string    `json:"agent"`
	Tool         string    `json:"tool"`
	ErrorType    ErrorType `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
	RetryCount   int       `json:"retry_count"`
}
