// Package storage persists the per-instance state document. Providers only
// move opaque document bytes; schema versioning and migration live in the
// store package.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// ErrNotFound is returned when no document exists for an instance yet.
var ErrNotFound = errors.New("document not found")

// Database is the persistence gateway for versioned state documents, keyed
// by the integration instance ID.
type Database interface {
	LoadDocument(ctx context.Context, instanceID string) ([]byte, error)
	SaveDocument(ctx context.Context, instanceID string, raw []byte) error
	ListInstances(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "file", "Storage provider to use (available: file, firestore)")

	var p struct{ Database }

	fileDB := configuredFile()
	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "file":
			if err := fileDB.Init(); err != nil {
				panic(fmt.Sprintf("file storage init failed: %v", err))
			}
			p.Database = fileDB
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Database = fs
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
