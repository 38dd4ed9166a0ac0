// Package mongo stores audit entries in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"gympay/internal/domain"
)

const auditCollection = "audit_logs"

type auditDocument struct {
	ID        string         `bson:"_id"`
	Action    string         `bson:"action"`
	Resource  string         `bson:"resource"`
	ActorID   string         `bson:"actor_id,omitempty"`
	Details   map[string]any `bson:"details,omitempty"`
	Success   bool           `bson:"success"`
	CreatedAt time.Time      `bson:"created_at"`
}

// AuditRepository is a MongoDB implementation of repository.AuditRepository.
type AuditRepository struct {
	collection *mongo.Collection
}

// NewAuditRepository creates an audit repository on db.
func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{collection: db.Collection(auditCollection)}
}

// EnsureIndexes creates the lookup indexes for the audit collection.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "resource", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}

// Record inserts an audit entry.
func (r *AuditRepository) Record(ctx context.Context, entry *domain.AuditEntry) error {
	_, err := r.collection.InsertOne(ctx, auditDocument{
		ID:        entry.ID,
		Action:    entry.Action,
		Resource:  entry.Resource,
		ActorID:   entry.ActorID,
		Details:   entry.Details,
		Success:   entry.Success,
		CreatedAt: entry.CreatedAt,
	})
	return err
}
