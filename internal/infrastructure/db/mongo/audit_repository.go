package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

// AuditRepository implements ports.AuditRepository on the audit_events
// collection. Every insert runs in its own session checked out from the
// client pool, so it never shares a unit of work with a request.
type AuditRepository struct {
	client *mongo.Client
	col    *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{client: db.Client(), col: db.Collection(collectionAuditEvents)}
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

// Insert persists event with a server-assigned timestamp.
func (r *AuditRepository) Insert(ctx context.Context, event *domain.AuditEvent) error {
	doc := bson.M{
		"_id":        primitive.NewObjectID(),
		"user_id":    event.UserID,
		"event_type": string(event.EventType),
		"created_at": time.Now().UTC(),
	}

	err := r.client.UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := r.col.InsertOne(sc, doc)
		return err
	})
	if err != nil {
		return wrapErr("insert audit event", err)
	}
	return nil
}
