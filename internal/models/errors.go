package models

import "errors"

// Domain errors surfaced to API clients. Handlers map these to HTTP status codes
// with errors.Is; repositories wrap storage failures separately.
var (
	ErrNotFound           = errors.New("record not found")
	ErrUnknownDepartment  = errors.New("department does not participate in approvals")
	ErrInvalidStatus      = errors.New("invalid department status")
	ErrInvalidStageStatus = errors.New("invalid stage status")
	ErrCommentRequired    = errors.New("comment is required when flagging")
	ErrNotReady           = errors.New("srd is not ready for production")
	ErrNoStagesConfigured = errors.New("no active production stages configured")
	ErrNotInProduction    = errors.New("srd is not in production")
	ErrStageMismatch      = errors.New("named stage is not the current production stage")
	ErrReadOnlyField      = errors.New("field is derived and cannot be patched directly")
	ErrUnknownField       = errors.New("unknown field in patch")
	ErrRefNoExhausted     = errors.New("could not generate a unique reference number")
	ErrDuplicateRefNo     = errors.New("reference number already in use")
)
