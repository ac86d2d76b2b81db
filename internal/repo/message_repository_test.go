package repo

import (
	"context"
	"testing"

	"Teamdesk/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Validation runs before any collection access, so a nil mongo repository is
// fine here; a message that passes validation would hit the store.
func newValidationOnlyRepo(t *testing.T) MessageRepository {
	t.Helper()
	return NewMessageRepository(nil, zap.NewNop())
}

func validMessage() *model.Message {
	return &model.Message{
		ConversationKey: model.ConversationKey("alice", "bob"),
		SenderID:        "alice",
		ReceiverID:      "bob",
		Body:            "hi",
	}
}

func TestInsertRejectsInvalidMessages(t *testing.T) {
	repo := newValidationOnlyRepo(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*model.Message)
		wantErr error
	}{
		{
			name:    "missing conversation key",
			mutate:  func(m *model.Message) { m.ConversationKey = "" },
			wantErr: ErrInvalidKey,
		},
		{
			name:    "missing sender",
			mutate:  func(m *model.Message) { m.SenderID = "" },
			wantErr: ErrInvalidActor,
		},
		{
			name:    "missing receiver",
			mutate:  func(m *model.Message) { m.ReceiverID = "" },
			wantErr: ErrInvalidActor,
		},
		{
			name:    "sender messaging themselves",
			mutate:  func(m *model.Message) { m.ReceiverID = m.SenderID },
			wantErr: ErrSelfConversation,
		},
		{
			name:    "empty body",
			mutate:  func(m *model.Message) { m.Body = "" },
			wantErr: ErrEmptyBody,
		},
		{
			name:    "whitespace-only body",
			mutate:  func(m *model.Message) { m.Body = "   \t\n" },
			wantErr: ErrEmptyBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(msg)

			persisted, err := repo.Insert(ctx, msg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, persisted)
		})
	}
}

func TestInsertRejectsNilMessage(t *testing.T) {
	repo := newValidationOnlyRepo(t)

	persisted, err := repo.Insert(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Nil(t, persisted)
}

func TestMarkReadRejectsMissingArguments(t *testing.T) {
	repo := newValidationOnlyRepo(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.MarkRead(ctx, "", "bob"), ErrInvalidKey)
	assert.ErrorIs(t, repo.MarkRead(ctx, "alice:bob", ""), ErrInvalidActor)
}

func TestListAndDeleteRejectEmptyKey(t *testing.T) {
	repo := newValidationOnlyRepo(t)
	ctx := context.Background()

	msgs, err := repo.ListByConversation(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Nil(t, msgs)

	assert.ErrorIs(t, repo.DeleteByConversation(ctx, ""), ErrInvalidKey)
}
