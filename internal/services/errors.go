package services

import "errors"

// Authorization and validation errors are returned to the originating
// connection; everything else is logged by the caller.
var (
	ErrNotAMember           = errors.New("not a member of this project")
	ErrCapabilityDenied     = errors.New("missing capability for this action")
	ErrInvalidContent       = errors.New("content must not be empty")
	ErrInvalidTitle         = errors.New("title must be non-empty text without control characters")
	ErrMessageNotFound      = errors.New("message not found")
	ErrProjectNotFound      = errors.New("project not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrAlreadyMember        = errors.New("user is already a member of this project")
)
