package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KeySeparator joins the two participant ids of a pairwise conversation key.
const KeySeparator = ":"

// ConversationKey derives the stable identifier for the pairwise
// conversation between two actors. The ids are ordered lexicographically
// before joining, so ConversationKey(a, b) == ConversationKey(b, a) and both
// participants converge on the same record no matter who starts the thread.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + KeySeparator + b
}

// Conversation is one pairwise thread in the conversations collection.
// Unread maps participant id to the count of messages addressed to them
// that are still unread; it is maintained with field-level $inc/$set and
// never recomputed from the message log on the request path.
type Conversation struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationKey string             `json:"conversationKey" bson:"conversation_key"`
	ParticipantIDs  []string           `json:"participantIds" bson:"participant_ids"`
	LastMessage     string             `json:"lastMessage" bson:"last_message"`
	LastMessageTime time.Time          `json:"lastMessageTime" bson:"last_message_time"`
	Unread          map[string]int64   `json:"unread" bson:"unread"`
	CreatedAt       time.Time          `json:"createdAt" bson:"created_at"`
}

// HasParticipant reports whether actor is one of the two participants.
func (c *Conversation) HasParticipant(actor string) bool {
	for _, id := range c.ParticipantIDs {
		if id == actor {
			return true
		}
	}
	return false
}

// UnreadFor returns the unread counter for actor, zero when absent.
func (c *Conversation) UnreadFor(actor string) int64 {
	if c.Unread == nil {
		return 0
	}
	return c.Unread[actor]
}
