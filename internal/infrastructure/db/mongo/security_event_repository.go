package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
)

const securityEventsCollection = "security_events"

// SecurityEventRepository implements ports.SecurityEventRepository using MongoDB.
type SecurityEventRepository struct {
	coll *mongo.Collection
}

func NewSecurityEventRepository(db *mongo.Database) ports.SecurityEventRepository {
	return &SecurityEventRepository{coll: db.Collection(securityEventsCollection)}
}

// InsertSecurityEvent appends one entry to the security_events audit collection.
func (r *SecurityEventRepository) InsertSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"type":        string(event.Type),
		"email":       event.Email,
		"occurred_at": event.OccurredAt.UTC(),
		"recorded_at": time.Now().UTC(),
	}
	if event.AccountID != "" {
		doc["account_id"] = event.AccountID
	}
	if event.IP != "" {
		doc["ip"] = event.IP
	}
	if event.UserAgent != "" {
		doc["user_agent"] = event.UserAgent
	}
	if event.Detail != "" {
		doc["detail"] = event.Detail
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}
