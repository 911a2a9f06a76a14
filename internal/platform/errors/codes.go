// Package errors provides structured error handling for Storyweft services.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Generation errors
	CodeParseFailure   Code = "PARSE_FAILURE"
	CodeCooldownActive Code = "COOLDOWN_ACTIVE"
	CodeAborted        Code = "ABORTED"

	// Orchestration errors
	CodeExtractorFailure Code = "EXTRACTOR_FAILURE"
	CodeUnresolvedName   Code = "UNRESOLVED_NAME"

	// Event errors
	CodeEventUnknownSubkind Code = "EVENT_UNKNOWN_SUBKIND"
	CodeEventInvalidPayload Code = "EVENT_INVALID_PAYLOAD"
	CodeEventEmptyChatID    Code = "EVENT_EMPTY_CHAT_ID"

	// Chat/session errors
	CodeChatEmptyID    Code = "CHAT_EMPTY_ID"
	CodeChatNotBound   Code = "CHAT_NOT_BOUND"
	CodeTurnEmptyInput Code = "TURN_EMPTY_INPUT"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInternal        Code = "INTERNAL"
)
