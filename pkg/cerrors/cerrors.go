package cerrors

import (
	"fmt"

	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	ErrorTypeNonUserFriendly     ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric             ErrorType = "GENERIC_ERROR"
	ErrorTypeValidation          ErrorType = "VALIDATION_ERROR"
	ErrorTypeSafetyAbort         ErrorType = "SAFETY_ABORT"
	ErrorTypeConflict            ErrorType = "CONFLICTING_RUN"
	ErrorTypeActionExecution     ErrorType = "ACTION_EXECUTION_ERROR"
	ErrorTypeProviderUnavailable ErrorType = "PROVIDER_UNAVAILABLE"
	ErrorTypeRollbackFailure     ErrorType = "ROLLBACK_FAILURE"
	ErrorTypeTargetSelection     ErrorType = "TARGET_SELECTION_ERROR"
	ErrorTypeUnsupportedAction   ErrorType = "UNSUPPORTED_ACTION"
	ErrorTypeTimeout             ErrorType = "TIMEOUT"
)

// Error is the engine-wide error carrier. ErrorCode drives the handling
// policy at the coordinator boundary, Phase and Target scope the message.
type Error struct {
	ErrorCode ErrorType
	Phase     string
	Target    string
	Reason    string
}

func (e Error) Error() string {
	switch {
	case e.Phase == "" && e.Target == "":
		return e.Reason
	case e.Phase == "":
		return fmt.Sprintf("target: '%s', %s", e.Target, e.Reason)
	case e.Target == "":
		return fmt.Sprintf("[%s]: %s", e.Phase, e.Reason)
	}
	return fmt.Sprintf("[%s]: target: '%s', %s", e.Phase, e.Target, e.Reason)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is safe to surface in a run record
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

// GetRootCauseAndErrorCode unwraps a stacktrace chain down to its root
// cause and reports the root's error code
func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}

// Is reports whether err (or its root cause) carries the given code
func Is(err error, code ErrorType) bool {
	return GetErrorType(stacktrace.RootCause(err)) == code
}
