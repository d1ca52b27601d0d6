// Package storage defines the blob store used to cache rendered QR code images.
//
// Backends implement Storage and register themselves with the factory from an
// init() function in their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// cmd/server blank-imports every backend so the registrations run at startup.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists at the path.
var ErrNotFound = errors.New("object not found")

// Storage is a minimal key/value blob store. Paths use forward slashes.
type Storage interface {
	// Put writes data at path, replacing any existing object
	Put(ctx context.Context, path string, data []byte, contentType string) error

	// Get returns the object at path or ErrNotFound
	Get(ctx context.Context, path string) ([]byte, error)

	// Delete removes the object at path. Missing objects are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether an object exists at path
	Exists(ctx context.Context, path string) (bool, error)

	// DeletePrefix removes every object whose path starts with prefix
	DeletePrefix(ctx context.Context, prefix string) error
}
