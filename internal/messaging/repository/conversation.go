package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	messagingerrors "hirewheel/internal/messaging/errors"
	"hirewheel/pkg/config"
	"hirewheel/pkg/model"
)

const (
	ConversationCollection = "Conversations"
)

type mongoConversationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

type ConversationRepository interface {
	GetOrCreate(ctx context.Context, userA, userB string) (*model.Conversation, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByParticipant(ctx context.Context, userID string, limit int, offset int64) ([]*model.Conversation, error)
	CountByParticipant(ctx context.Context, userID string) (int64, error)
	UpdateSummary(ctx context.Context, id string, lastMessage string, at time.Time) error
}

func NewMongoConversationRepository(cfg *config.Config) ConversationRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoConversationRepository{
		cfg:        cfg,
		collection: db.Collection(ConversationCollection),
	}
}

func (r *mongoConversationRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.RequestTimeout)
}

// GetOrCreate finds the conversation for the unordered pair, creating it
// atomically when absent. The upsert on the canonical pair key plus its
// unique index guarantees concurrent first contacts converge on a single
// document.
func (r *mongoConversationRepository) GetOrCreate(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	key := model.PairKey(userA, userB)

	filter := bson.M{"participants_key": key}
	update := bson.M{
		"$setOnInsert": bson.M{
			"participants":      model.ParticipantsFromKey(key),
			"participants_key":  key,
			"last_message":      "",
			"latest_message_at": time.Time{},
			"created_at":        time.Now().UTC().Truncate(time.Millisecond),
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var conversation model.Conversation
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&conversation); err != nil {
		return nil, fmt.Errorf("failed to get or create conversation: %w", err)
	}

	return &conversation, nil
}

func (r *mongoConversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", messagingerrors.ErrInvalidID, id)
	}

	var conversation model.Conversation
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, messagingerrors.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}

	return &conversation, nil
}

func (r *mongoConversationRepository) FindByParticipant(ctx context.Context, userID string, limit int, offset int64) ([]*model.Conversation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "latest_message_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var conversations []*model.Conversation
	if err = cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	return conversations, nil
}

func (r *mongoConversationRepository) CountByParticipant(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"participants": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// UpdateSummary refreshes the denormalized list-view fields. Last writer
// wins; concurrent sends may race and that is acceptable for display data.
func (r *mongoConversationRepository) UpdateSummary(ctx context.Context, id string, lastMessage string, at time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", messagingerrors.ErrInvalidID, id)
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{
			"last_message":      lastMessage,
			"latest_message_at": at,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation summary: %w", err)
	}
	return nil
}
