package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Teamdesk/internal/db"
	"Teamdesk/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrInvalidMessage = errors.New("invalid message: message cannot be nil")
	ErrInvalidKey     = errors.New("invalid conversation key: cannot be empty")
	ErrInvalidActor   = errors.New("invalid actor id: cannot be empty")
	ErrEmptyBody      = errors.New("invalid message: body cannot be empty")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

// MessageRepository is the append-only message log. Messages are never
// mutated after insert except for the read flag, and never deleted except
// as part of whole-conversation deletion.
type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) (*model.Message, error)
	ListByConversation(ctx context.Context, conversationKey string) ([]model.Message, error)
	MarkRead(ctx context.Context, conversationKey, receiver string) error
	DeleteByConversation(ctx context.Context, conversationKey string) error
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := m.validateMessage(msg); err != nil {
		return nil, err
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			persisted := *msg
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				persisted.ID = oid
			}

			m.logger.Info("message inserted",
				zap.String("inserted_id", persisted.ID.Hex()),
				zap.String("conversation_key", msg.ConversationKey),
				zap.Int("attempt", attempt+1),
			)
			return &persisted, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_key", msg.ConversationKey),
	)

	return nil, fmt.Errorf("insert message failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// ListByConversation
// -----------------------------------------------------------------------------

// ListByConversation returns every message of the conversation in insertion
// order. ObjectIDs are the total order; created_at is only advisory and may
// tie, so the sort is on _id.
func (m *messageRepository) ListByConversation(ctx context.Context, conversationKey string) ([]model.Message, error) {
	if conversationKey == "" {
		return nil, ErrInvalidKey
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_key", conversationKey).Build()
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	msgs, err := m.mongoRepo.FindAll(ctx, filter, opts)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		m.logger.Error("failed to list messages",
			zap.String("conversation_key", conversationKey),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list messages failed: %w", err)
	}

	m.logger.Debug("messages listed",
		zap.String("conversation_key", conversationKey),
		zap.Int("count", len(msgs)),
	)
	return msgs, nil
}

// -----------------------------------------------------------------------------
// MarkRead
// -----------------------------------------------------------------------------

// MarkRead flips the read flag on every unread message addressed to the
// receiver in this conversation. Idempotent: a second call matches nothing.
func (m *messageRepository) MarkRead(ctx context.Context, conversationKey, receiver string) error {
	if conversationKey == "" {
		return ErrInvalidKey
	}
	if receiver == "" {
		return ErrInvalidActor
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_key", conversationKey).
		Eq("receiver_id", receiver).
		Eq("read", false).
		Build()

	result, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		m.logger.Error("failed to mark messages read",
			zap.String("conversation_key", conversationKey),
			zap.String("receiver", receiver),
			zap.Error(err),
		)
		return fmt.Errorf("mark read failed: %w", err)
	}

	m.logger.Debug("messages marked read",
		zap.String("conversation_key", conversationKey),
		zap.String("receiver", receiver),
		zap.Int64("modified", result.ModifiedCount),
	)
	return nil
}

// -----------------------------------------------------------------------------
// DeleteByConversation
// -----------------------------------------------------------------------------

func (m *messageRepository) DeleteByConversation(ctx context.Context, conversationKey string) error {
	if conversationKey == "" {
		return ErrInvalidKey
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_key", conversationKey).Build()

	result, err := m.mongoRepo.DeleteMany(ctx, filter)
	if err != nil {
		m.logger.Error("failed to purge messages",
			zap.String("conversation_key", conversationKey),
			zap.Error(err),
		)
		return fmt.Errorf("purge messages failed: %w", err)
	}

	m.logger.Info("messages purged",
		zap.String("conversation_key", conversationKey),
		zap.Int64("deleted", result.DeletedCount),
	)
	return nil
}

// -----------------------------------------------------------------------------
// Private Helpers
// -----------------------------------------------------------------------------

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ConversationKey == "" {
		return ErrInvalidKey
	}
	if msg.SenderID == "" || msg.ReceiverID == "" {
		return ErrInvalidActor
	}
	if msg.SenderID == msg.ReceiverID {
		return ErrSelfConversation
	}
	if strings.TrimSpace(msg.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}

func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
