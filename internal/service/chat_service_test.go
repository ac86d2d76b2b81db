package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Teamdesk/internal/model"
	"Teamdesk/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// In-memory fakes mirroring the storage-layer atomicity guarantees
// ---------------------------------------------------------------------------

type fakeMessageStore struct {
	mu         sync.Mutex
	msgs       []model.Message
	failInsert bool
	failPurge  bool
}

func (f *fakeMessageStore) Insert(ctx context.Context, msg *model.Message) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failInsert {
		return nil, errors.New("write concern error")
	}

	persisted := *msg
	persisted.ID = primitive.NewObjectID()
	f.msgs = append(f.msgs, persisted)
	return &persisted, nil
}

func (f *fakeMessageStore) ListByConversation(ctx context.Context, key string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Message
	for _, m := range f.msgs {
		if m.ConversationKey == key {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) MarkRead(ctx context.Context, key, receiver string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.msgs {
		if f.msgs[i].ConversationKey == key && f.msgs[i].ReceiverID == receiver {
			f.msgs[i].Read = true
		}
	}
	return nil
}

func (f *fakeMessageStore) DeleteByConversation(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failPurge {
		return errors.New("purge failed")
	}

	kept := f.msgs[:0]
	for _, m := range f.msgs {
		if m.ConversationKey != key {
			kept = append(kept, m)
		}
	}
	f.msgs = kept
	return nil
}

// unreadInStore recomputes the unread count from the log, the way the index
// must never do at runtime; tests use it to check the two never diverge.
func (f *fakeMessageStore) unreadInStore(key, receiver string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, m := range f.msgs {
		if m.ConversationKey == key && m.ReceiverID == receiver && !m.Read {
			n++
		}
	}
	return n
}

type fakeConversationIndex struct {
	mu    sync.Mutex
	convs map[string]*model.Conversation
}

func newFakeConversationIndex() *fakeConversationIndex {
	return &fakeConversationIndex{convs: make(map[string]*model.Conversation)}
}

func (f *fakeConversationIndex) FindOrCreate(ctx context.Context, a, b string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := model.ConversationKey(a, b)
	if c, ok := f.convs[key]; ok {
		copied := *c
		return &copied, nil
	}

	if b < a {
		a, b = b, a
	}
	c := &model.Conversation{
		ConversationKey: key,
		ParticipantIDs:  []string{a, b},
		Unread:          map[string]int64{a: 0, b: 0},
		CreatedAt:       time.Now().UTC(),
	}
	f.convs[key] = c
	copied := *c
	return &copied, nil
}

func (f *fakeConversationIndex) Get(ctx context.Context, key string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.convs[key]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (f *fakeConversationIndex) RecordNewMessage(ctx context.Context, key, receiver, text string, when time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.convs[key]
	if !ok {
		return errors.New("conversation not found")
	}
	c.LastMessage = text
	c.LastMessageTime = when
	c.Unread[receiver]++
	return nil
}

func (f *fakeConversationIndex) ResetUnread(ctx context.Context, key, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.convs[key]; ok {
		c.Unread[actor] = 0
	}
	return nil
}

func (f *fakeConversationIndex) ListForParticipant(ctx context.Context, actor string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Conversation
	for _, c := range f.convs {
		if c.HasParticipant(actor) {
			out = append(out, *c)
		}
	}
	// recency sort, newest first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].LastMessageTime.After(out[i].LastMessageTime) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeConversationIndex) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.convs[key]; !ok {
		return errors.New("conversation not found")
	}
	delete(f.convs, key)
	return nil
}

type fakeDirectory struct {
	users []model.User
}

func (f *fakeDirectory) GetUser(ctx context.Context, id string) (*model.User, error) {
	for _, u := range f.users {
		if u.UserID == id {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) ListContacts(ctx context.Context, selfID string) ([]model.Contact, error) {
	var out []model.Contact
	for _, u := range f.users {
		if u.UserID == selfID || !u.IsActive {
			continue
		}
		out = append(out, model.ContactOf(u))
	}
	return out, nil
}

type publishedMessage struct {
	key string
	msg model.Message
}

type publishedNotification struct {
	actor, key, sender string
}

type fakePublisher struct {
	mu            sync.Mutex
	messages      []publishedMessage
	notifications []publishedNotification
}

func (f *fakePublisher) PublishMessage(key string, msg model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, publishedMessage{key: key, msg: msg})
}

func (f *fakePublisher) PublishNotification(actor, key, sender string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, publishedNotification{actor: actor, key: key, sender: sender})
}

type testEnv struct {
	store     *fakeMessageStore
	index     *fakeConversationIndex
	directory *fakeDirectory
	publisher *fakePublisher
	svc       ChatService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:     &fakeMessageStore{},
		index:     newFakeConversationIndex(),
		directory: &fakeDirectory{},
		publisher: &fakePublisher{},
	}
	env.svc = NewChatService(env.store, env.index, env.directory, env.publisher, zap.NewNop())
	return env
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

func TestSendCreatesConversationOnFirstContact(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	msg, err := env.svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)
	require.NotNil(t, msg)

	key := model.ConversationKey("alice", "bob")
	assert.Equal(t, key, msg.ConversationKey)
	assert.False(t, msg.Read)
	assert.False(t, msg.ID.IsZero(), "caller gets the persisted message")

	conv, err := env.index.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "hi", conv.LastMessage)
	assert.Equal(t, int64(1), conv.UnreadFor("bob"))
	assert.Equal(t, int64(0), conv.UnreadFor("alice"))

	require.Len(t, env.publisher.messages, 1)
	assert.Equal(t, key, env.publisher.messages[0].key)
	require.Len(t, env.publisher.notifications, 1)
	assert.Equal(t, publishedNotification{actor: "bob", key: key, sender: "alice"}, env.publisher.notifications[0])
}

func TestSendValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	cases := []struct {
		name                   string
		sender, receiver, text string
	}{
		{"empty text", "alice", "bob", ""},
		{"whitespace text", "alice", "bob", "   "},
		{"missing receiver", "alice", "", "hi"},
		{"missing sender", "", "bob", "hi"},
		{"self message", "alice", "alice", "hi"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Send(ctx, tc.sender, tc.receiver, tc.text)
			assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), "want validation error, got %v", err)
		})
	}

	// rejected sends leave no trace anywhere
	assert.Empty(t, env.store.msgs)
	assert.Empty(t, env.publisher.messages)
	assert.Empty(t, env.publisher.notifications)
}

func TestSendDoesNotPublishWhenPersistFails(t *testing.T) {
	env := newTestEnv()
	env.store.failInsert = true

	_, err := env.svc.Send(context.Background(), "alice", "bob", "hi")
	assert.True(t, apperr.Is(err, apperr.CodeInternal))

	assert.Empty(t, env.publisher.messages, "an unpersisted message must never be published")
	assert.Empty(t, env.publisher.notifications)

	conv, _ := env.index.Get(context.Background(), model.ConversationKey("alice", "bob"))
	assert.Nil(t, conv, "index untouched when persistence fails")
}

func TestSendBothDirectionsShareOneConversation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)
	_, err = env.svc.Send(ctx, "bob", "alice", "hello back")
	require.NoError(t, err)

	convs, err := env.svc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 1, "both directions must converge on one record")
	assert.Equal(t, "hello back", convs[0].LastMessage)
	assert.Equal(t, int64(1), convs[0].UnreadFor("alice"))
	assert.Equal(t, int64(1), convs[0].UnreadFor("bob"))
}

// ---------------------------------------------------------------------------
// OpenConversation
// ---------------------------------------------------------------------------

func TestOpenConversationMarksReadAndResetsUnread(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	key := model.ConversationKey("alice", "bob")

	_, err := env.svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	msgs, err := env.svc.OpenConversation(ctx, "bob", key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Read, "returned messages reflect the read flip")

	conv, _ := env.index.Get(ctx, key)
	assert.Equal(t, int64(0), conv.UnreadFor("bob"))
	assert.Equal(t, int64(0), env.store.unreadInStore(key, "bob"))
}

func TestOpenConversationIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	key := model.ConversationKey("alice", "bob")

	_, err := env.svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	first, err := env.svc.OpenConversation(ctx, "bob", key)
	require.NoError(t, err)
	second, err := env.svc.OpenConversation(ctx, "bob", key)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	conv, _ := env.index.Get(ctx, key)
	assert.Equal(t, int64(0), conv.UnreadFor("bob"))
}

func TestOpenConversationForbiddenForNonParticipant(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	key := model.ConversationKey("alice", "bob")

	_, err := env.svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	msgs, err := env.svc.OpenConversation(ctx, "mallory", key)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))
	assert.Nil(t, msgs, "no data leaks on denied access")
}

func TestOpenConversationUnknownKeyReturnsEmpty(t *testing.T) {
	env := newTestEnv()

	msgs, err := env.svc.OpenConversation(context.Background(), "alice", "alice:nobody")
	require.NoError(t, err, "read of a nonexistent conversation degrades to empty, not error")
	assert.Empty(t, msgs)
}

// ---------------------------------------------------------------------------
// Unread accounting: index and store never diverge
// ---------------------------------------------------------------------------

func TestUnreadAccountingStaysConsistentAcrossReplay(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	key := model.ConversationKey("alice", "bob")

	steps := []struct {
		op    string
		actor string
		text  string
	}{
		{"send", "alice", "one"},
		{"send", "alice", "two"},
		{"open", "bob", ""},
		{"send", "bob", "three"},
		{"send", "alice", "four"},
		{"open", "bob", ""},
		{"open", "bob", ""},
		{"send", "alice", "five"},
	}

	for _, st := range steps {
		switch st.op {
		case "send":
			receiver := "bob"
			if st.actor == "bob" {
				receiver = "alice"
			}
			_, err := env.svc.Send(ctx, st.actor, receiver, st.text)
			require.NoError(t, err)
		case "open":
			_, err := env.svc.OpenConversation(ctx, st.actor, key)
			require.NoError(t, err)
		}

		conv, err := env.index.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, conv)
		for _, actor := range []string{"alice", "bob"} {
			assert.Equal(t, env.store.unreadInStore(key, actor), conv.UnreadFor(actor),
				"index diverged from store for %s after %s", actor, st.op)
		}
	}
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func TestListOrderMatchesPublishOrder(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	key := model.ConversationKey("alice", "bob")

	bodies := []string{"one", "two", "three", "four"}
	for _, b := range bodies {
		_, err := env.svc.Send(ctx, "alice", "bob", b)
		require.NoError(t, err)
	}

	msgs, err := env.svc.OpenConversation(ctx, "bob", key)
	require.NoError(t, err)
	require.Len(t, msgs, len(bodies))

	for i, b := range bodies {
		assert.Equal(t, b, msgs[i].Body, "store order is send order")
		assert.Equal(t, b, env.publisher.messages[i].msg.Body, "publish order matches store order")
	}
}

// ---------------------------------------------------------------------------
// DeleteConversation
// ---------------------------------------------------------------------------

func TestDeleteConversationPurgesEverything(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	key := model.ConversationKey("alice", "bob")

	_, err := env.svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)
	_, err = env.svc.Send(ctx, "alice", "bob", "there")
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteConversation(ctx, "bob", key))

	convs, err := env.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, convs)

	msgs, err := env.svc.OpenConversation(ctx, "alice", key)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeleteConversationAuthorization(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	key := model.ConversationKey("alice", "bob")

	_, err := env.svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	err = env.svc.DeleteConversation(ctx, "mallory", key)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	err = env.svc.DeleteConversation(ctx, "alice", "no:such")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestDeleteConversationToleratesPurgeFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	key := model.ConversationKey("alice", "bob")

	_, err := env.svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	env.store.failPurge = true

	// index delete succeeded, purge failed: logged, not surfaced
	assert.NoError(t, env.svc.DeleteConversation(ctx, "alice", key))

	conv, _ := env.index.Get(ctx, key)
	assert.Nil(t, conv, "conversation is gone for both participants")
}

// ---------------------------------------------------------------------------
// Scenario: the full exchange from first contact to deletion
// ---------------------------------------------------------------------------

func TestFullExchangeScenario(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	key := model.ConversationKey("alice", "bob")

	_, err := env.svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	conv, _ := env.index.Get(ctx, key)
	require.NotNil(t, conv)
	assert.Equal(t, int64(1), conv.UnreadFor("bob"))
	assert.Equal(t, "hi", conv.LastMessage)

	msgs, err := env.svc.OpenConversation(ctx, "bob", key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Read)
	conv, _ = env.index.Get(ctx, key)
	assert.Equal(t, int64(0), conv.UnreadFor("bob"))

	_, err = env.svc.Send(ctx, "alice", "bob", "there")
	require.NoError(t, err)
	conv, _ = env.index.Get(ctx, key)
	assert.Equal(t, int64(1), conv.UnreadFor("bob"))
	assert.Equal(t, "there", conv.LastMessage)

	require.NoError(t, env.svc.DeleteConversation(ctx, "bob", key))

	convs, err := env.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, convs)
	msgs, err = env.svc.OpenConversation(ctx, "bob", key)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// ---------------------------------------------------------------------------
// Contacts and join support
// ---------------------------------------------------------------------------

func TestListContactsExcludesSelfAndInactive(t *testing.T) {
	env := newTestEnv()
	env.directory.users = []model.User{
		{UserID: "alice", Username: "Alice", IsActive: true, IsEmployee: true},
		{UserID: "bob", Username: "Bob", IsActive: true},
		{UserID: "carol", Username: "Carol", IsActive: false},
	}

	contacts, err := env.svc.ListContacts(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "bob", contacts[0].UserID)
}

func TestConversationKeysForOrderedByRecency(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.Send(ctx, "alice", "bob", "hi bob")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = env.svc.Send(ctx, "alice", "carol", "hi carol")
	require.NoError(t, err)

	keys, err := env.svc.ConversationKeysFor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, model.ConversationKey("alice", "carol"), keys[0])
	assert.Equal(t, model.ConversationKey("alice", "bob"), keys[1])
}
