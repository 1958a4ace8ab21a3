package auth

import (
	"context"
	"log/slog"
	"time"

	"coursechat/pkg/interfaces"
	"coursechat/pkg/types"
)

// Authorizer decides whether a user may join a course room. It is a pure
// decision function over the relationship graph: no side effects, safe to
// call repeatedly and concurrently.
type Authorizer struct {
	directory interfaces.Directory
	timeout   time.Duration
	log       *slog.Logger
}

// NewAuthorizer creates an authorizer backed by the given directory.
// Directory lookups that exceed timeout fail closed.
func NewAuthorizer(directory interfaces.Directory, timeout time.Duration, log *slog.Logger) *Authorizer {
	return &Authorizer{directory: directory, timeout: timeout, log: log}
}

// AuthorizeRoom evaluates the room access rules in order, first match wins:
//
//  1. anonymous users are denied
//  2. unknown rooms are denied
//  3. the course's instructor is allowed
//  4. a student is denied when blocked by the instructor, otherwise
//     allowed iff enrolled
//  5. everyone else (another teacher, an unenrolled student) is denied
//
// On allow it returns the course the rules were evaluated against, so the
// caller acts on the same snapshot the decision used. Any lookup failure,
// including the timeout, is reported as a denial.
func (a *Authorizer) AuthorizeRoom(ctx context.Context, user *types.User, roomID int64) (*types.Course, bool) {
	if user == nil || user.ID <= 0 {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	course, err := a.directory.GetCourse(ctx, roomID)
	if err != nil {
		if err != interfaces.ErrCourseNotFound {
			a.log.Warn("course lookup failed, denying join",
				"room", roomID, "user_id", user.ID, "error", err)
		}
		return nil, false
	}

	if user.IsTeacher() {
		if course.InstructorID == user.ID {
			return course, true
		}
		return nil, false
	}

	if user.IsStudent() {
		// A block wins over an existing enrollment: blocking is checked at
		// connect time, not enrollment time.
		blocked, err := a.directory.IsBlocked(ctx, course.InstructorID, user.ID)
		if err != nil {
			a.log.Warn("block lookup failed, denying join",
				"room", roomID, "user_id", user.ID, "error", err)
			return nil, false
		}
		if blocked {
			return nil, false
		}

		enrolled, err := a.directory.IsEnrolled(ctx, user.ID, course.ID)
		if err != nil {
			a.log.Warn("enrollment lookup failed, denying join",
				"room", roomID, "user_id", user.ID, "error", err)
			return nil, false
		}
		if enrolled {
			return course, true
		}
		return nil, false
	}

	return nil, false
}

// CanJoinRoom reports the access decision alone.
func (a *Authorizer) CanJoinRoom(ctx context.Context, user *types.User, roomID int64) bool {
	_, ok := a.AuthorizeRoom(ctx, user, roomID)
	return ok
}
