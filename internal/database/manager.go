package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "coursechat/pkg/database"
	"coursechat/pkg/interfaces"
	"coursechat/pkg/types"
)

// Manager owns the SQLite database. It implements the Directory read side
// (users, courses, enrollments and blocks, written by the external CRUD
// layer) plus the MessageStore and NotificationStore.
//
// All writes funnel through a single goroutine: SQLite allows one writer at
// a time, and serializing here keeps appends for unrelated rooms from
// fighting over the write lock at the driver level. Reads run concurrently
// on the connection pool.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	log          *slog.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the schema and starts the write
// loop.
func NewManager(config *dbconfig.Config, log *slog.Logger) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLitePragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite pragmas: %w", err)
	}

	if err := dbconfig.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		log:          log,
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)
		case <-m.shutdown:
			m.log.Debug("database write loop shutting down")
			// Run queued writes to completion so an accepted message is
			// never lost to shutdown timing.
			for {
				select {
				case op := <-m.writeChannel:
					op.result <- op.operation(m.db)
				default:
					return
				}
			}
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}

	// The operation is already queued; wait it out even if ctx expires so
	// an accepted message is never half-persisted from the caller's view.
	return <-result
}

// --- Directory ---

// GetCourse resolves a course by id.
func (m *Manager) GetCourse(ctx context.Context, id int64) (*types.Course, error) {
	var course types.Course
	err := m.db.QueryRowContext(ctx,
		`SELECT id, title, instructor_id FROM courses WHERE id = ?`, id,
	).Scan(&course.ID, &course.Title, &course.InstructorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to query course: %w", err)
	}
	return &course, nil
}

// GetUser resolves a user by id.
func (m *Manager) GetUser(ctx context.Context, id int64) (*types.User, error) {
	var user types.User
	err := m.db.QueryRowContext(ctx,
		`SELECT id, username, role FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Username, &user.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// IsEnrolled reports whether the student holds an enrollment in the course.
func (m *Manager) IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = ? AND course_id = ?)`,
		studentID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query enrollment: %w", err)
	}
	return exists, nil
}

// IsBlocked reports whether the instructor has a block against the student.
func (m *Manager) IsBlocked(ctx context.Context, instructorID, studentID int64) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocks WHERE teacher_id = ? AND blocked_id = ?)`,
		instructorID, studentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query block: %w", err)
	}
	return exists, nil
}

// --- MessageStore ---

// AppendMessage persists a new room message with a server timestamp and
// returns the stored record including its insertion sequence.
func (m *Manager) AppendMessage(ctx context.Context, courseID, authorID int64, content string) (*types.ChatMessage, error) {
	msg := &types.ChatMessage{
		CourseID:  courseID,
		UserID:    authorID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.Exec(
			`INSERT INTO chat_messages (course_id, user_id, content, created_at) VALUES (?, ?, ?, ?)`,
			msg.CourseID, msg.UserID, msg.Content, msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		msg.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// RecentMessages returns up to limit most recent room messages, oldest
// first, ordered by (created_at, id) for a stable read-back order.
func (m *Manager) RecentMessages(ctx context.Context, courseID int64, limit int) ([]*types.ChatMessage, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, course_id, user_id, content, created_at
		FROM (
			SELECT id, course_id, user_id, content, created_at
			FROM chat_messages
			WHERE course_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC`,
		courseID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query room history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.CourseID, &msg.UserID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// --- NotificationStore ---

// AppendNotification persists a new unread notification.
func (m *Manager) AppendNotification(ctx context.Context, recipientID int64, actorID *int64, verb, url string) (*types.Notification, error) {
	n := &types.Notification{
		RecipientID: recipientID,
		ActorID:     actorID,
		Verb:        verb,
		URL:         url,
		CreatedAt:   time.Now().UTC(),
	}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		var actor sql.NullInt64
		if actorID != nil {
			actor = sql.NullInt64{Int64: *actorID, Valid: true}
		}
		res, err := db.Exec(
			`INSERT INTO notifications (recipient_id, actor_id, verb, url, created_at) VALUES (?, ?, ?, ?, ?)`,
			n.RecipientID, actor, n.Verb, n.URL, n.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		n.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read notification id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// UnreadCount returns the number of unread notifications for a user.
func (m *Manager) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read_at IS NULL`,
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// ListNotifications returns up to limit notifications for a user, newest
// first.
func (m *Manager) ListNotifications(ctx context.Context, recipientID int64, limit int) ([]*types.Notification, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, recipient_id, actor_id, verb, url, created_at, read_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		recipientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notifications []*types.Notification
	for rows.Next() {
		var n types.Notification
		var actor sql.NullInt64
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.RecipientID, &actor, &n.Verb, &n.URL, &n.CreatedAt, &readAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		if actor.Valid {
			n.ActorID = &actor.Int64
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return notifications, nil
}

// MarkRead sets the read timestamp of a notification owned by the
// recipient. The timestamp is monotonic: a second call leaves the original
// value in place.
func (m *Manager) MarkRead(ctx context.Context, id, recipientID int64) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.Exec(
			`UPDATE notifications SET read_at = ? WHERE id = ? AND recipient_id = ? AND read_at IS NULL`,
			time.Now().UTC(), id, recipientID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read update result: %w", err)
		}
		if affected > 0 {
			return nil
		}

		// Either already read (fine) or not owned/unknown (an error).
		var exists bool
		err = db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = ? AND recipient_id = ?)`,
			id, recipientID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check notification: %w", err)
		}
		if !exists {
			return interfaces.ErrNotificationNotFound
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM chat_messages LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying connection for schema validation and tests.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the write loop and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applySQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
