package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"letsee/internal/model"
)

// ArchiveRepo persists finished-session snapshots so result and export
// queries keep working after the reaper evicts a session from the registry.
type ArchiveRepo interface {
	Save(ctx context.Context, snap *model.SessionSnapshot) error
	GetByID(ctx context.Context, sessionID string) (*model.SessionSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

type archiveRepo struct {
	collection *mongo.Collection
}

// NewArchiveRepo creates a Mongo-backed archive. Returns nil when no client
// is available so callers can skip archival entirely.
func NewArchiveRepo(client *mongo.Client, database string) ArchiveRepo {
	if client == nil {
		return nil
	}
	db := client.Database(database)
	return &archiveRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *archiveRepo) Save(ctx context.Context, snap *model.SessionSnapshot) error {
	filter := map[string]interface{}{"_id": snap.SessionID}
	// Upsert so re-judging the same session stays idempotent.
	_, err := r.collection.ReplaceOne(ctx, filter, snap, options.Replace().SetUpsert(true))
	return err
}

func (r *archiveRepo) GetByID(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	var snap model.SessionSnapshot
	err := r.collection.FindOne(ctx, map[string]interface{}{"_id": sessionID}).Decode(&snap)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Session not archived
		}
		return nil, err
	}
	return &snap, nil
}

func (r *archiveRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.collection.DeleteOne(ctx, map[string]interface{}{"_id": sessionID})
	return err
}
