package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tariffsaver/tariffsaver/pkg/log"
)

// FirestoreProvider implements Database using Google Cloud Firestore, one
// document per instance under the "instances" collection. The state document
// is stored as a JSON string field for portability.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) doc(instanceID string) (*firestore.DocumentRef, error) {
	if instanceID == "" {
		return nil, fmt.Errorf("instanceID cannot be empty")
	}
	return f.client.Collection("instances").Doc(instanceID), nil
}

// LoadDocument retrieves the state document for an instance.
func (f *FirestoreProvider) LoadDocument(ctx context.Context, instanceID string) ([]byte, error) {
	ref, err := f.doc(instanceID)
	if err != nil {
		return nil, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceID)
		}
		return nil, fmt.Errorf("failed to fetch state doc: %w", err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "state doc missing json", slog.String("instanceID", instanceID))
		return nil, fmt.Errorf("state document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "state doc json not string", slog.String("instanceID", instanceID))
		return nil, fmt.Errorf("state 'json' field is not a string")
	}
	return []byte(jsonStr), nil
}

// ListInstances returns the instance IDs with a stored document.
func (f *FirestoreProvider) ListInstances(ctx context.Context) ([]string, error) {
	iter := f.client.Collection("instances").DocumentRefs(ctx)

	var ids []string
	for {
		ref, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating instances: %w", err)
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

// SaveDocument stores the state document for an instance.
func (f *FirestoreProvider) SaveDocument(ctx context.Context, instanceID string, raw []byte) error {
	ref, err := f.doc(instanceID)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		"json":    string(raw),
		"updated": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save state doc: %w", err)
	}
	return nil
}
