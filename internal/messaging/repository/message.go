package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hirewheel/pkg/config"
	mongodb "hirewheel/pkg/db/mongo"
	"hirewheel/pkg/model"
)

const (
	MessageCollection = "Messages"
)

type mongoMessageRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	feed       *mongodb.ChangeFeed
}

type MessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByConversation(ctx context.Context, conversationID string, limit int, offset int64) ([]*model.Message, error)
	CountByConversation(ctx context.Context, conversationID string) (int64, error)
	WatchConversationInserts(ctx context.Context, conversationID string) (<-chan mongodb.InsertEvent, func(), error)
}

func NewMongoMessageRepository(cfg *config.Config) MessageRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	collection := db.Collection(MessageCollection)
	return &mongoMessageRepository{
		cfg:        cfg,
		collection: collection,
		feed:       mongodb.NewChangeFeed(collection, cfg.Log),
	}
}

func (r *mongoMessageRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.RequestTimeout)
}

func (r *mongoMessageRepository) Create(ctx context.Context, message *model.Message) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	message.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		message.ID = oid.Hex()
	}
	return nil
}

// FindByConversation returns messages ascending by creation time, the
// display order.
func (r *mongoMessageRepository) FindByConversation(ctx context.Context, conversationID string, limit int, offset int64) ([]*model.Message, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*model.Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return messages, nil
}

func (r *mongoMessageRepository) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// WatchConversationInserts tails the change stream for messages inserted
// into one conversation, the cross-instance delivery path.
func (r *mongoMessageRepository) WatchConversationInserts(ctx context.Context, conversationID string) (<-chan mongodb.InsertEvent, func(), error) {
	return r.feed.WatchInserts(ctx, bson.M{"conversation_id": conversationID})
}
