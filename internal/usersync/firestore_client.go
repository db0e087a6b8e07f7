package usersync

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/quickcart/usersync/internal/dbconn"
)

// DialFirestore returns a dial function for the given project.
// FIRESTORE_EMULATOR_HOST is honoured by the client library itself.
func DialFirestore(projectID string) dbconn.DialFunc[*firestore.Client] {
	return func(ctx context.Context) (*firestore.Client, error) {
		client, err := firestore.NewClient(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		return client, nil
	}
}

// CloseFirestore closes a client.
func CloseFirestore(_ context.Context, client *firestore.Client) error {
	return client.Close()
}
