package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one entry in the append-only message log. Only the Read flag
// ever changes after insert; everything else is immutable. The ObjectID is
// the authoritative ordering within a conversation - CreatedAt is advisory.
type Message struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationKey string             `json:"conversationKey" bson:"conversation_key"`
	SenderID        string             `json:"senderId" bson:"sender_id"`
	ReceiverID      string             `json:"receiverId" bson:"receiver_id"`
	Body            string             `json:"body" bson:"body"`
	Read            bool               `json:"read" bson:"read"`
	CreatedAt       time.Time          `json:"createdAt" bson:"created_at"`
}
