package interfaces

import "errors"

// Shared sentinel errors for collaborator lookups.
var (
	ErrCourseNotFound       = errors.New("course not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")
)
