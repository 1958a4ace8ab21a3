package database

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dbconfig "coursechat/pkg/database"
	"coursechat/pkg/interfaces"
	"coursechat/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(&dbconfig.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:  4,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

// seedClassroom writes the fixture the external CRUD layer would own:
// teacher 1 instructing course 10, student 2 enrolled, student 3 enrolled
// but blocked, student 4 unenrolled.
func seedClassroom(t *testing.T, m *Manager) {
	t.Helper()

	db := m.GetDB()
	stmts := []string{
		`INSERT INTO users (id, username, role) VALUES
			(1, 'prof', 'teacher'), (2, 'sam', 'student'),
			(3, 'bob', 'student'), (4, 'uma', 'student')`,
		`INSERT INTO courses (id, title, instructor_id) VALUES (10, 'Go 101', 1)`,
		`INSERT INTO enrollments (student_id, course_id) VALUES (2, 10), (3, 10)`,
		`INSERT INTO blocks (teacher_id, blocked_id) VALUES (1, 3)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestSchemaIsCreated(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, dbconfig.NewSchemaValidator(m.GetDB()).ValidateTablesExist())
	require.NoError(t, m.HealthCheck(context.Background()))
}

func TestDirectoryQueries(t *testing.T) {
	m := newTestManager(t)
	seedClassroom(t, m)
	ctx := context.Background()

	t.Run("get course", func(t *testing.T) {
		req := require.New(t)
		course, err := m.GetCourse(ctx, 10)
		req.NoError(err)
		req.Equal(&types.Course{ID: 10, Title: "Go 101", InstructorID: 1}, course)

		_, err = m.GetCourse(ctx, 99)
		req.ErrorIs(err, interfaces.ErrCourseNotFound)
	})

	t.Run("get user", func(t *testing.T) {
		req := require.New(t)
		user, err := m.GetUser(ctx, 2)
		req.NoError(err)
		req.Equal(&types.User{ID: 2, Username: "sam", Role: types.RoleStudent}, user)

		_, err = m.GetUser(ctx, 99)
		req.ErrorIs(err, interfaces.ErrUserNotFound)
	})

	t.Run("enrollment", func(t *testing.T) {
		req := require.New(t)
		enrolled, err := m.IsEnrolled(ctx, 2, 10)
		req.NoError(err)
		req.True(enrolled)

		enrolled, err = m.IsEnrolled(ctx, 4, 10)
		req.NoError(err)
		req.False(enrolled)
	})

	t.Run("block", func(t *testing.T) {
		req := require.New(t)
		blocked, err := m.IsBlocked(ctx, 1, 3)
		req.NoError(err)
		req.True(blocked)

		blocked, err = m.IsBlocked(ctx, 1, 2)
		req.NoError(err)
		req.False(blocked)
	})
}

func TestAppendAndReadMessages(t *testing.T) {
	req := require.New(t)

	m := newTestManager(t)
	seedClassroom(t, m)
	ctx := context.Background()

	first, err := m.AppendMessage(ctx, 10, 2, "hello")
	req.NoError(err)
	req.Positive(first.ID)
	req.False(first.CreatedAt.IsZero())

	second, err := m.AppendMessage(ctx, 10, 1, "welcome")
	req.NoError(err)
	req.Greater(second.ID, first.ID, "insertion sequence must be monotonic")
	req.False(second.CreatedAt.Before(first.CreatedAt))

	messages, err := m.RecentMessages(ctx, 10, 50)
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("hello", messages[0].Content)
	req.Equal("welcome", messages[1].Content)
}

func TestRecentMessagesWindow(t *testing.T) {
	req := require.New(t)

	m := newTestManager(t)
	seedClassroom(t, m)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := m.AppendMessage(ctx, 10, 2, string(rune('a'+i)))
		req.NoError(err)
	}

	// The window keeps the most recent N but returns them oldest first.
	messages, err := m.RecentMessages(ctx, 10, 3)
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal("h", messages[0].Content)
	req.Equal("j", messages[2].Content)
}

func TestConcurrentAppends(t *testing.T) {
	req := require.New(t)

	m := newTestManager(t)
	seedClassroom(t, m)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AppendMessage(ctx, 10, 2, "burst")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	messages, err := m.RecentMessages(ctx, 10, 100)
	req.NoError(err)
	req.Len(messages, 20)
	for i := 1; i < len(messages); i++ {
		req.Greater(messages[i].ID, messages[i-1].ID)
		req.False(messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
	}
}

func TestNotificationLifecycle(t *testing.T) {
	req := require.New(t)

	m := newTestManager(t)
	seedClassroom(t, m)
	ctx := context.Background()

	actor := int64(2)
	n, err := m.AppendNotification(ctx, 1, &actor, "sam left feedback on Go 101", "/courses/10/")
	req.NoError(err)
	req.Positive(n.ID)
	req.Nil(n.ReadAt)

	_, err = m.AppendNotification(ctx, 1, nil, "system notice", "")
	req.NoError(err)

	count, err := m.UnreadCount(ctx, 1)
	req.NoError(err)
	req.Equal(2, count)

	listed, err := m.ListNotifications(ctx, 1, 10)
	req.NoError(err)
	req.Len(listed, 2)
	req.Equal("system notice", listed[0].Verb, "newest first")
	req.Nil(listed[0].ActorID)
	req.NotNil(listed[1].ActorID)

	t.Run("mark read is monotonic", func(t *testing.T) {
		req := require.New(t)

		req.NoError(m.MarkRead(ctx, n.ID, 1))

		after, err := m.ListNotifications(ctx, 1, 10)
		req.NoError(err)
		var read *types.Notification
		for _, item := range after {
			if item.ID == n.ID {
				read = item
			}
		}
		req.NotNil(read)
		req.NotNil(read.ReadAt)
		req.False(read.ReadAt.Before(read.CreatedAt))
		firstReadAt := *read.ReadAt

		// A second call must not move the timestamp.
		req.NoError(m.MarkRead(ctx, n.ID, 1))
		again, err := m.ListNotifications(ctx, 1, 10)
		req.NoError(err)
		for _, item := range again {
			if item.ID == n.ID {
				req.Equal(firstReadAt, *item.ReadAt)
			}
		}

		count, err := m.UnreadCount(ctx, 1)
		req.NoError(err)
		req.Equal(1, count)
	})

	t.Run("mark read enforces ownership", func(t *testing.T) {
		require.ErrorIs(t, m.MarkRead(ctx, n.ID, 2), interfaces.ErrNotificationNotFound)
		require.ErrorIs(t, m.MarkRead(ctx, 9999, 1), interfaces.ErrNotificationNotFound)
	})
}
