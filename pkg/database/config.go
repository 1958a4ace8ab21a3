package database

import "time"

// Config carries the SQLite connection settings used by the manager.
type Config struct {
	DatabasePath    string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}
