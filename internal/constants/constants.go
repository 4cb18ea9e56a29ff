// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Processing constants
const (
	// WorkerPoolSize is the default number of owners clustered in parallel by the CLI
	WorkerPoolSize = 4
)

// Server constants
const (
	// ShutdownTimeout bounds graceful shutdown of the web server and background loops
	ShutdownTimeout = 30 * time.Second

	// DefaultTokenTTL is the lifetime of owner tokens issued by the CLI
	DefaultTokenTTL = 30 * 24 * time.Hour
)
