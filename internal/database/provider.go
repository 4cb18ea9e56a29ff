package database

import (
	"context"
	"errors"
)

var (
	postgresImageWriter func() ImageWriter
	postgresGroupWriter func() GroupWriter
	postgresInitialized bool
)

var errNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the serve command to avoid import cycles with the postgres package.
func RegisterPostgresBackend(
	imageWriter func() ImageWriter,
	groupWriter func() GroupWriter,
) {
	postgresImageWriter = imageWriter
	postgresGroupWriter = groupWriter
	postgresInitialized = true
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetImageWriter returns an ImageWriter from the PostgreSQL backend
func GetImageWriter(ctx context.Context) (ImageWriter, error) {
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresImageWriter == nil {
		return nil, errors.New("PostgreSQL image writer not registered")
	}
	return postgresImageWriter(), nil
}

// GetGroupWriter returns a GroupWriter from the PostgreSQL backend
func GetGroupWriter(ctx context.Context) (GroupWriter, error) {
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresGroupWriter == nil {
		return nil, errors.New("PostgreSQL group writer not registered")
	}
	return postgresGroupWriter(), nil
}
