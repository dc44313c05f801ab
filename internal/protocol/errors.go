package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode values come in two bands: 4000-series protocol faults are
// client-attributable and replayable only after correction; 5000-series
// operational faults are server-attributable and may be transient.
type ErrorCode int

const (
	CodeInvalidJSONRPC         ErrorCode = 4000
	CodeInvalidProtocolVersion ErrorCode = 4001
	CodeInvalidMethod          ErrorCode = 4002
	CodeMissingEnvelope        ErrorCode = 4003
	CodeInvalidEnvelopeField   ErrorCode = 4004
	CodeMissingRequiredField   ErrorCode = 4005
	CodeInvalidMessageType     ErrorCode = 4006
	CodeInvalidSenderFormat    ErrorCode = 4007
	CodeInvalidTimestamp       ErrorCode = 4008
	CodeAuthenticationFailed   ErrorCode = 4009
	CodeAuthorizationFailed    ErrorCode = 4010
	CodeDuplicateRegistration  ErrorCode = 4011
	CodeRegistrationClosed     ErrorCode = 4012
	CodeInvalidAgentState      ErrorCode = 4013
	CodeInvalidMatchID         ErrorCode = 4014
	CodeInvalidRoundID         ErrorCode = 4015
	CodeInvalidLeagueID        ErrorCode = 4016
	CodeDuplicateResult        ErrorCode = 4017
	CodeValidationError        ErrorCode = 4018
	CodePreconditionFailed     ErrorCode = 4019
	CodeInvalidRefereeID       ErrorCode = 4020
	CodeInvalidPlayerID        ErrorCode = 4021

	CodeInternalError        ErrorCode = 5000
	CodeDatabaseError        ErrorCode = 5001
	CodeTimeoutExceeded      ErrorCode = 5002
	CodeRefereeUnavailable   ErrorCode = 5003
	CodeMatchExecutionFailed ErrorCode = 5004
	CodeStateCorruption      ErrorCode = 5005
	CodePersistenceFailed    ErrorCode = 5006
	CodeConfigurationError   ErrorCode = 5008
	CodeCommunicationError   ErrorCode = 5009
)

var codeNames = map[ErrorCode]string{
	CodeInvalidJSONRPC:         "INVALID_JSON_RPC",
	CodeInvalidProtocolVersion: "INVALID_PROTOCOL_VERSION",
	CodeInvalidMethod:          "INVALID_METHOD",
	CodeMissingEnvelope:        "MISSING_ENVELOPE",
	CodeInvalidEnvelopeField:   "INVALID_ENVELOPE_FIELD",
	CodeMissingRequiredField:   "MISSING_REQUIRED_FIELD",
	CodeInvalidMessageType:     "INVALID_MESSAGE_TYPE",
	CodeInvalidSenderFormat:    "INVALID_SENDER_FORMAT",
	CodeInvalidTimestamp:       "INVALID_TIMESTAMP",
	CodeAuthenticationFailed:   "AUTHENTICATION_FAILED",
	CodeAuthorizationFailed:    "AUTHORIZATION_FAILED",
	CodeDuplicateRegistration:  "DUPLICATE_REGISTRATION",
	CodeRegistrationClosed:     "REGISTRATION_CLOSED",
	CodeInvalidAgentState:      "INVALID_AGENT_STATE",
	CodeInvalidMatchID:         "INVALID_MATCH_ID",
	CodeInvalidRoundID:         "INVALID_ROUND_ID",
	CodeInvalidLeagueID:        "INVALID_LEAGUE_ID",
	CodeDuplicateResult:        "DUPLICATE_RESULT",
	CodeValidationError:        "VALIDATION_ERROR",
	CodePreconditionFailed:     "PRECONDITION_FAILED",
	CodeInvalidRefereeID:       "INVALID_REFEREE_ID",
	CodeInvalidPlayerID:        "INVALID_PLAYER_ID",
	CodeInternalError:          "INTERNAL_ERROR",
	CodeDatabaseError:          "DATABASE_ERROR",
	CodeTimeoutExceeded:        "TIMEOUT_EXCEEDED",
	CodeRefereeUnavailable:     "REFEREE_UNAVAILABLE",
	CodeMatchExecutionFailed:   "MATCH_EXECUTION_FAILED",
	CodeStateCorruption:        "STATE_CORRUPTION",
	CodePersistenceFailed:      "PERSISTENCE_FAILED",
	CodeConfigurationError:     "CONFIGURATION_ERROR",
	CodeCommunicationError:     "COMMUNICATION_ERROR",
}

func (c ErrorCode) Name() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsProtocol reports whether the code is a client-attributable 4000-series
// fault.
func (c ErrorCode) IsProtocol() bool {
	return c >= 4000 && c < 5000
}

type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code.Name(), e.Message)
}

func NewError(code ErrorCode, message string, details map[string]any) *Error {
	if details == nil {
		details = map[string]any{}
	}
	return &Error{Code: code, Message: message, Details: details}
}

func NewValidationError(message, field string) *Error {
	details := map[string]any{}
	if field != "" {
		details["field"] = field
	}
	return NewError(CodeValidationError, message, details)
}

func NewAuthenticationError(message string) *Error {
	return NewError(CodeAuthenticationFailed, message, nil)
}

func NewAuthorizationError(message string, expected, actual string) *Error {
	return NewError(CodeAuthorizationFailed, message, map[string]any{
		"expected": expected,
		"actual":   actual,
	})
}

func NewDuplicateRegistrationError(agentID string) *Error {
	return NewError(CodeDuplicateRegistration,
		fmt.Sprintf("Agent %s is already registered", agentID),
		map[string]any{"agent_id": agentID})
}

func NewRegistrationClosedError() *Error {
	return NewError(CodeRegistrationClosed, "Registration window is closed", nil)
}

func NewPreconditionFailedError(message string, details map[string]any) *Error {
	return NewError(CodePreconditionFailed, message, details)
}

func NewDuplicateResultError(matchID string) *Error {
	return NewError(CodeDuplicateResult,
		fmt.Sprintf("Result already reported for match %s", matchID),
		map[string]any{"match_id": matchID})
}

// AsError converts any error into a protocol error, mapping unknown
// failures to the generic internal code without leaking more than the
// error's string form.
func AsError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return NewError(CodeInternalError, fmt.Sprintf("Internal error: %s", err), nil)
}
