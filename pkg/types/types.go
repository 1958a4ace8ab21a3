package types

import (
	"strconv"
	"time"
)

// Role classifies every account in the system. A role is immutable for the
// lifetime of a session; the gateway never re-reads it mid-connection.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// User is the identity attached to a connection after token verification.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsTeacher reports whether the user carries the teacher role.
func (u *User) IsTeacher() bool { return u != nil && u.Role == RoleTeacher }

// IsStudent reports whether the user carries the student role.
func (u *User) IsStudent() bool { return u != nil && u.Role == RoleStudent }

// Course is the unit of ownership for a chat room. A course is owned by
// exactly one instructor; the room for course N is identified by N.
type Course struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	InstructorID int64  `json:"instructor_id"`
}

// ChatMessage is one persisted room message. Append-only: rows are never
// mutated after creation. ID is the store-assigned insertion sequence and,
// together with CreatedAt, the stable read-back ordering key.
type ChatMessage struct {
	ID        int64     `json:"id"`
	CourseID  int64     `json:"course_id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is one persisted personal notification. ReadAt is the only
// mutable field and is monotonic: once set it is never cleared.
type Notification struct {
	ID          int64      `json:"id"`
	RecipientID int64      `json:"recipient_id"`
	ActorID     *int64     `json:"actor_id,omitempty"`
	Verb        string     `json:"verb"`
	URL         string     `json:"url"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// IsRead reports whether the notification has been marked read.
func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// GroupKey names a fan-out target in the group registry: either a course
// room or a single user's personal notification scope.
type GroupKey string

// RoomKey returns the group key for a course's chat room.
func RoomKey(courseID int64) GroupKey {
	return GroupKey("room:" + strconv.FormatInt(courseID, 10))
}

// UserKey returns the group key for a user's personal notification group.
func UserKey(userID int64) GroupKey {
	return GroupKey("user:" + strconv.FormatInt(userID, 10))
}

// ChatFrame is the server-to-client frame broadcast to a room.
type ChatFrame struct {
	Message      string `json:"message"`
	User         string `json:"user"`
	UserID       int64  `json:"user_id"`
	IsInstructor bool   `json:"is_instructor"`
	Timestamp    string `json:"timestamp"`
}

// NewChatFrame builds the broadcast frame for a persisted message.
func NewChatFrame(msg *ChatMessage, author *User, instructorID int64) ChatFrame {
	return ChatFrame{
		Message:      msg.Content,
		User:         author.Username,
		UserID:       author.ID,
		IsInstructor: author.ID == instructorID,
		Timestamp:    msg.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NotificationFrame is the server-to-client frame pushed to a user's
// personal notification connections.
type NotificationFrame struct {
	ID              int64  `json:"id"`
	Verb            string `json:"verb"`
	URL             string `json:"url"`
	CreatedAt       string `json:"created_at"`
	UnreadIncrement int    `json:"unread_increment"`
}

// NewNotificationFrame builds the push frame for a persisted notification.
func NewNotificationFrame(n *Notification) NotificationFrame {
	return NotificationFrame{
		ID:              n.ID,
		Verb:            n.Verb,
		URL:             n.URL,
		CreatedAt:       n.CreatedAt.UTC().Format(time.RFC3339),
		UnreadIncrement: 1,
	}
}

// SystemFrame is sent to a single connection for out-of-band events such as
// a failed persist. It is never broadcast.
type SystemFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Message string `json:"message"`
}
