package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Teamdesk/internal/db"
	"Teamdesk/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrSelfConversation     = errors.New("conversation participants must be distinct")
	ErrConversationNotFound = errors.New("conversation not found")
)

type conversationRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

// ConversationRepository is the conversation index: one document per
// pairwise conversation key, carrying the denormalized last-message preview
// and the per-participant unread counters. Counter updates are single
// field-level atomic updates at the store; there is no read-modify-write
// anywhere in the request path.
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, actorA, actorB string) (*model.Conversation, error)
	Get(ctx context.Context, conversationKey string) (*model.Conversation, error)
	RecordNewMessage(ctx context.Context, conversationKey, receiver, text string, when time.Time) error
	ResetUnread(ctx context.Context, conversationKey, actor string) error
	ListForParticipant(ctx context.Context, actor string) ([]model.Conversation, error)
	Delete(ctx context.Context, conversationKey string) error
}

func NewConversationRepository(repo *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// FindOrCreate looks up the conversation for the pair, creating it when
// absent. The upsert runs against the unique conversation_key index, so two
// first-contact attempts racing from either side converge on one document.
func (r *conversationRepository) FindOrCreate(ctx context.Context, actorA, actorB string) (*model.Conversation, error) {
	if actorA == "" || actorB == "" {
		return nil, ErrInvalidActor
	}
	if actorA == actorB {
		return nil, ErrSelfConversation
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	key := model.ConversationKey(actorA, actorB)
	if actorB < actorA {
		actorA, actorB = actorB, actorA
	}

	filter := db.NewFilter().Eq("conversation_key", key).Build()
	update := bson.M{
		"$setOnInsert": bson.M{
			"conversation_key":  key,
			"participant_ids":   []string{actorA, actorB},
			"last_message":      "",
			"last_message_time": time.Now().UTC(),
			"unread":            bson.M{actorA: 0, actorB: 0},
			"created_at":        time.Now().UTC(),
		},
	}

	result, err := r.mongoRepo.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// A concurrent upsert can still trip the unique index; the document
		// exists in that case, so fall through to the lookup.
		if !mongo.IsDuplicateKeyError(err) {
			r.logger.Error("conversation upsert failed",
				zap.String("conversation_key", key),
				zap.Error(err),
			)
			return nil, fmt.Errorf("find or create conversation failed: %w", err)
		}
	} else if result.UpsertedCount > 0 {
		r.logger.Info("conversation created", zap.String("conversation_key", key))
	}

	conv, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation after upsert failed: %w", err)
	}
	return conv, nil
}

// Get returns the conversation or nil when the key is unknown.
func (r *conversationRepository) Get(ctx context.Context, conversationKey string) (*model.Conversation, error) {
	if conversationKey == "" {
		return nil, ErrInvalidKey
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_key", conversationKey).Build()

	conv, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_key", conversationKey),
			zap.Error(err),
		)
		return nil, fmt.Errorf("fetch conversation failed: %w", err)
	}
	return conv, nil
}

// RecordNewMessage refreshes the preview and bumps the receiver's unread
// counter in one atomic update, so a concurrent ResetUnread on the other
// participant can never lose an increment.
func (r *conversationRepository) RecordNewMessage(ctx context.Context, conversationKey, receiver, text string, when time.Time) error {
	if conversationKey == "" {
		return ErrInvalidKey
	}
	if receiver == "" {
		return ErrInvalidActor
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_key", conversationKey).Build()
	update := bson.M{
		"$set": bson.M{
			"last_message":      text,
			"last_message_time": when,
		},
		"$inc": bson.M{
			"unread." + receiver: 1,
		},
	}

	result, err := r.mongoRepo.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("failed to record new message",
			zap.String("conversation_key", conversationKey),
			zap.Error(err),
		)
		return fmt.Errorf("record new message failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ResetUnread zeroes the actor's unread counter. No-op on unknown keys.
func (r *conversationRepository) ResetUnread(ctx context.Context, conversationKey, actor string) error {
	if conversationKey == "" {
		return ErrInvalidKey
	}
	if actor == "" {
		return ErrInvalidActor
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_key", conversationKey).Build()
	update := bson.M{
		"$set": bson.M{
			"unread." + actor: 0,
		},
	}

	if _, err := r.mongoRepo.UpdateOne(ctx, filter, update); err != nil {
		r.logger.Error("failed to reset unread counter",
			zap.String("conversation_key", conversationKey),
			zap.String("actor", actor),
			zap.Error(err),
		)
		return fmt.Errorf("reset unread failed: %w", err)
	}
	return nil
}

// ListForParticipant returns the actor's conversations, most recent first.
func (r *conversationRepository) ListForParticipant(ctx context.Context, actor string) ([]model.Conversation, error) {
	if actor == "" {
		return nil, ErrInvalidActor
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("participant_ids", actor).Build()
	opts := options.Find().SetSort(bson.D{{Key: "last_message_time", Value: -1}})

	convs, err := r.mongoRepo.FindAll(ctx, filter, opts)
	if err != nil {
		r.logger.Error("failed to list conversations",
			zap.String("actor", actor),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}

	r.logger.Debug("conversations listed",
		zap.String("actor", actor),
		zap.Int("count", len(convs)),
	)
	return convs, nil
}

func (r *conversationRepository) Delete(ctx context.Context, conversationKey string) error {
	if conversationKey == "" {
		return ErrInvalidKey
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_key", conversationKey).Build()

	result, err := r.mongoRepo.Delete(ctx, filter)
	if err != nil {
		r.logger.Error("failed to delete conversation",
			zap.String("conversation_key", conversationKey),
			zap.Error(err),
		)
		return fmt.Errorf("delete conversation failed: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrConversationNotFound
	}

	r.logger.Info("conversation deleted", zap.String("conversation_key", conversationKey))
	return nil
}
