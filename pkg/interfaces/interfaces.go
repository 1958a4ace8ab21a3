package interfaces

import (
	"context"

	"coursechat/pkg/types"
)

// Directory is the relationship-graph query service. Account and enrollment
// records are owned by an external CRUD layer; the gateway only reads them.
type Directory interface {
	// GetCourse resolves a course by id. Returns ErrCourseNotFound for
	// unknown ids.
	GetCourse(ctx context.Context, id int64) (*types.Course, error)

	// GetUser resolves a user by id. Returns ErrUserNotFound for unknown ids.
	GetUser(ctx context.Context, id int64) (*types.User, error)

	// IsEnrolled reports whether the student holds an enrollment in the
	// course.
	IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error)

	// IsBlocked reports whether the instructor has a block against the
	// student.
	IsBlocked(ctx context.Context, instructorID, studentID int64) (bool, error)
}

// MessageStore is the durable append-only log of room messages.
type MessageStore interface {
	// AppendMessage persists a new message with a store-assigned id and
	// server timestamp, and returns the persisted record.
	AppendMessage(ctx context.Context, courseID, authorID int64, content string) (*types.ChatMessage, error)

	// RecentMessages returns up to limit most recent room messages,
	// oldest first.
	RecentMessages(ctx context.Context, courseID int64, limit int) ([]*types.ChatMessage, error)
}

// NotificationStore holds per-user notification records with read state.
type NotificationStore interface {
	// AppendNotification persists a new unread notification and returns the
	// persisted record.
	AppendNotification(ctx context.Context, recipientID int64, actorID *int64, verb, url string) (*types.Notification, error)

	// UnreadCount returns the number of unread notifications for a user.
	UnreadCount(ctx context.Context, recipientID int64) (int, error)

	// ListNotifications returns up to limit notifications for a user,
	// newest first.
	ListNotifications(ctx context.Context, recipientID int64, limit int) ([]*types.Notification, error)

	// MarkRead sets the read timestamp of a notification owned by the
	// recipient. Marking an already-read notification is a no-op; the
	// timestamp is never cleared or moved.
	MarkRead(ctx context.Context, id, recipientID int64) error
}

// Member is one live connection attached to a group. Deliver must never
// block: a member that cannot accept a frame reports an error and the
// registry drops it rather than stalling the publisher.
type Member interface {
	// ID identifies this handle; Join/Leave are keyed by it.
	ID() string

	// Deliver enqueues one outbound frame. Returns an error when the
	// member's send queue is full or the member is closed.
	Deliver(data []byte) error

	// Close forces the underlying transport closed. Idempotent.
	Close() error
}

// GroupRegistry maps group keys to the set of currently attached members
// and fans published payloads out to them.
type GroupRegistry interface {
	// Join attaches a member to a group. Idempotent per member id.
	Join(key types.GroupKey, m Member)

	// Leave detaches a member from a group. Calling it for a member that
	// never joined is a no-op.
	Leave(key types.GroupKey, m Member)

	// Publish delivers the payload to every member joined to the group at
	// the moment of the call, best-effort and at-most-once per member.
	// A member whose queue overflows is dropped, not waited on.
	Publish(key types.GroupKey, payload any)
}
