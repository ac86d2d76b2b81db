package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationKeyCommutative(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"u-100", "u-2"},
		{"zoe", "adam"},
		{"a", "b"},
	}

	for _, p := range pairs {
		assert.Equal(t, ConversationKey(p[0], p[1]), ConversationKey(p[1], p[0]),
			"key must not depend on argument order for %q/%q", p[0], p[1])
	}
}

func TestConversationKeyOrdersLexicographically(t *testing.T) {
	assert.Equal(t, "alice:bob", ConversationKey("bob", "alice"))
	assert.Equal(t, "alice:bob", ConversationKey("alice", "bob"))

	// numeric-looking ids still sort as strings
	assert.Equal(t, "u-100:u-2", ConversationKey("u-2", "u-100"))
}

func TestHasParticipant(t *testing.T) {
	conv := Conversation{ParticipantIDs: []string{"alice", "bob"}}

	assert.True(t, conv.HasParticipant("alice"))
	assert.True(t, conv.HasParticipant("bob"))
	assert.False(t, conv.HasParticipant("mallory"))
	assert.False(t, conv.HasParticipant(""))
}

func TestUnreadFor(t *testing.T) {
	conv := Conversation{Unread: map[string]int64{"bob": 3}}

	assert.Equal(t, int64(3), conv.UnreadFor("bob"))
	assert.Equal(t, int64(0), conv.UnreadFor("alice"))

	var empty Conversation
	assert.Equal(t, int64(0), empty.UnreadFor("bob"))
}
