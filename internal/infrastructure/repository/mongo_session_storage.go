package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/infrastructure/repository/entity"
	"fpp-app-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionsCollection = "fpp_sessions"

// MongoSessionStorage implements SessionStorage using MongoDB
type MongoSessionStorage struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoSessionStorage creates a new MongoDB session storage
func NewMongoSessionStorage(db *mongo.Database) *MongoSessionStorage {
	return &MongoSessionStorage{
		collection: db.Collection(sessionsCollection),
		now:        time.Now,
	}
}

var _ ports.SessionStorage = (*MongoSessionStorage)(nil)

// EnsureIndexes creates the shop lookup index and a TTL index on expires
func (r *MongoSessionStorage) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "shop", Value: 1}}},
		{
			Keys:    bson.D{{Key: "expires", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}

// StoreSession saves or replaces a session
func (r *MongoSessionStorage) StoreSession(ctx context.Context, session *domain.Session) (bool, error) {
	doc := entity.MongoSessionDocFromDomain(session)
	now := r.now()
	doc.UpdatedAt = now
	// _id comes from the filter on insert and is immutable afterwards
	doc.ID = ""

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"_id": session.ID}
	update := bson.M{
		"$set":         doc,
		"$setOnInsert": bson.M{"createdAt": now},
	}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}
	return true, nil
}

// LoadSession retrieves a session by id
func (r *MongoSessionStorage) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	var doc entity.MongoSessionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return doc.ToDomain(), nil
}

// DeleteSession deletes a session by id
func (r *MongoSessionStorage) DeleteSession(ctx context.Context, id string) (bool, error) {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return true, nil
}

// FindSessionsByShop lists every session stored for shop
func (r *MongoSessionStorage) FindSessionsByShop(ctx context.Context, shop string) ([]*domain.Session, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"shop": shop})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*domain.Session
	for cursor.Next(ctx) {
		var doc entity.MongoSessionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		sessions = append(sessions, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return sessions, nil
}
