package service

import (
	"context"
	"strings"
	"time"

	"Teamdesk/internal/model"
	"Teamdesk/internal/repo"
	"Teamdesk/pkg/apperr"

	"go.uber.org/zap"
)

// Publisher is the delivery channel seen from the service. Publishing is
// fire-and-forget: a publish with zero subscribers is a no-op, and delivery
// is never the durability mechanism - disconnected clients recover by
// re-fetching through OpenConversation/ListConversations.
type Publisher interface {
	PublishMessage(conversationKey string, msg model.Message)
	PublishNotification(actorID, conversationKey, senderID string)
}

// ChatService is the single orchestrator behind both entry points: the HTTP
// handlers and the live-channel event handler call the same methods, so the
// persist -> index -> publish sequence exists exactly once.
type ChatService interface {
	Send(ctx context.Context, sender, receiver, text string) (*model.Message, error)
	OpenConversation(ctx context.Context, actor, conversationKey string) ([]model.Message, error)
	DeleteConversation(ctx context.Context, actor, conversationKey string) error
	ListConversations(ctx context.Context, actor string) ([]model.Conversation, error)
	ListContacts(ctx context.Context, actor string) ([]model.Contact, error)
	ConversationKeysFor(ctx context.Context, actor string) ([]string, error)
}

type chatService struct {
	messages      repo.MessageRepository
	conversations repo.ConversationRepository
	users         repo.UserRepository
	publisher     Publisher
	logger        *zap.Logger
}

func NewChatService(
	messages repo.MessageRepository,
	conversations repo.ConversationRepository,
	users repo.UserRepository,
	publisher Publisher,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		messages:      messages,
		conversations: conversations,
		users:         users,
		publisher:     publisher,
		logger:        logger,
	}
}

// Send validates, persists, indexes, then publishes. A failure at any step
// stops the pipeline: an unpersisted message is never published.
func (s *chatService) Send(ctx context.Context, sender, receiver, text string) (*model.Message, error) {
	if sender == "" {
		return nil, apperr.InvalidArg("sender is required")
	}
	if receiver == "" {
		return nil, apperr.InvalidArg("receiver is required")
	}
	if sender == receiver {
		return nil, apperr.InvalidArg("cannot message yourself")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.InvalidArg("message text is required")
	}

	key := model.ConversationKey(sender, receiver)

	msg := &model.Message{
		ConversationKey: key,
		SenderID:        sender,
		ReceiverID:      receiver,
		Body:            text,
		Read:            false,
		CreatedAt:       time.Now().UTC(),
	}

	persisted, err := s.messages.Insert(ctx, msg)
	if err != nil {
		s.logger.Error("send: persist failed",
			zap.String("conversation_key", key),
			zap.Error(err),
		)
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to store message", err)
	}

	if _, err := s.conversations.FindOrCreate(ctx, sender, receiver); err != nil {
		s.logger.Error("send: conversation lookup failed",
			zap.String("conversation_key", key),
			zap.Error(err),
		)
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to resolve conversation", err)
	}

	if err := s.conversations.RecordNewMessage(ctx, key, receiver, persisted.Body, persisted.CreatedAt); err != nil {
		s.logger.Error("send: index update failed",
			zap.String("conversation_key", key),
			zap.Error(err),
		)
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to update conversation", err)
	}

	s.publisher.PublishMessage(key, *persisted)
	s.publisher.PublishNotification(receiver, key, sender)

	return persisted, nil
}

// OpenConversation returns the full message log and marks everything
// addressed to the actor as read, resetting their unread counter. Reading
// an unknown key degrades to an empty list rather than an error.
func (s *chatService) OpenConversation(ctx context.Context, actor, conversationKey string) ([]model.Message, error) {
	if actor == "" {
		return nil, apperr.InvalidArg("actor is required")
	}
	if conversationKey == "" {
		return nil, apperr.InvalidArg("conversation key is required")
	}

	conv, err := s.conversations.Get(ctx, conversationKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to load conversation", err)
	}
	if conv == nil {
		return []model.Message{}, nil
	}
	if !conv.HasParticipant(actor) {
		return nil, apperr.Forbidden("not a participant of this conversation")
	}

	msgs, err := s.messages.ListByConversation(ctx, conversationKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to load messages", err)
	}

	if err := s.messages.MarkRead(ctx, conversationKey, actor); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to mark messages read", err)
	}

	if err := s.conversations.ResetUnread(ctx, conversationKey, actor); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to reset unread counter", err)
	}

	// The list was fetched before the flag flip; reflect it for the caller.
	for i := range msgs {
		if msgs[i].ReceiverID == actor {
			msgs[i].Read = true
		}
	}

	return msgs, nil
}

// DeleteConversation removes the index record, then purges the message log.
// The two deletes are not atomic with each other: a purge failure after the
// index is gone is a recoverable inconsistency that is logged, not
// surfaced - the conversation is already invisible to both participants.
func (s *chatService) DeleteConversation(ctx context.Context, actor, conversationKey string) error {
	if actor == "" {
		return apperr.InvalidArg("actor is required")
	}
	if conversationKey == "" {
		return apperr.InvalidArg("conversation key is required")
	}

	conv, err := s.conversations.Get(ctx, conversationKey)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to load conversation", err)
	}
	if conv == nil {
		return apperr.NotFound("conversation not found")
	}
	if !conv.HasParticipant(actor) {
		return apperr.Forbidden("not a participant of this conversation")
	}

	if err := s.conversations.Delete(ctx, conversationKey); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to delete conversation", err)
	}

	if err := s.messages.DeleteByConversation(ctx, conversationKey); err != nil {
		s.logger.Error("orphaned messages: purge failed after index delete",
			zap.String("conversation_key", conversationKey),
			zap.String("actor", actor),
			zap.Error(err),
		)
	}

	return nil
}

func (s *chatService) ListConversations(ctx context.Context, actor string) ([]model.Conversation, error) {
	if actor == "" {
		return nil, apperr.InvalidArg("actor is required")
	}

	convs, err := s.conversations.ListForParticipant(ctx, actor)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to list conversations", err)
	}
	return convs, nil
}

func (s *chatService) ListContacts(ctx context.Context, actor string) ([]model.Contact, error) {
	if actor == "" {
		return nil, apperr.InvalidArg("actor is required")
	}

	contacts, err := s.users.ListContacts(ctx, actor)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to list contacts", err)
	}
	return contacts, nil
}

// ConversationKeysFor backs the live-channel join handshake: the hub
// subscribes a connection to one channel per key returned here.
func (s *chatService) ConversationKeysFor(ctx context.Context, actor string) ([]string, error) {
	convs, err := s.ListConversations(ctx, actor)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(convs))
	for _, c := range convs {
		keys = append(keys, c.ConversationKey)
	}
	return keys, nil
}
