package database

import (
	"database/sql"
	"fmt"
)

// Schema DDL. Users, courses, enrollments and blocks are written by the
// external account/course CRUD layer; this process only reads them, but it
// owns the schema so a fresh deployment is self-contained. chat_messages
// and notifications are written here.
//
// All statements are idempotent so EnsureSchema can run at every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		role     TEXT NOT NULL CHECK (role IN ('student', 'teacher'))
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		title         TEXT NOT NULL,
		instructor_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		student_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		course_id   INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		enrolled_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (student_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS blocks (
		teacher_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		blocked_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (teacher_id, blocked_id),
		CHECK (teacher_id <> blocked_id)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id  INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content    TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_course_created
		ON chat_messages (course_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		recipient_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		actor_id     INTEGER REFERENCES users(id) ON DELETE SET NULL,
		verb         TEXT NOT NULL,
		url          TEXT NOT NULL DEFAULT '',
		created_at   DATETIME NOT NULL,
		read_at      DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_read
		ON notifications (recipient_id, read_at)`,
}

// EnsureSchema applies the schema to the database.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// SchemaValidator verifies deployed databases without coupling callers to
// the DDL above.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a validator for the given database.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that every required table exists.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"users":         "account read replica",
		"courses":       "course read replica",
		"enrollments":   "enrollment read replica",
		"blocks":        "block list read replica",
		"chat_messages": "room message log",
		"notifications": "personal notifications",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

func (v *SchemaValidator) tableExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
