package registry

import "errors"

// Bridge lifecycle errors.
var (
	ErrBridgeAlreadyRunning = errors.New("redis bridge is already running")
	ErrBridgeNotRunning     = errors.New("redis bridge is not running")
)
