package event

import (
	"encoding/json"

	"Teamdesk/internal/model"
)

// Client to server
const (
	// EventJoin subscribes the connection to its personal channel plus one
	// channel per existing conversation. Required before any live delivery.
	EventJoin = "join"

	// EventClientMessage sends a message over the live channel. Same
	// semantics as the HTTP send endpoint.
	EventClientMessage = "client_message"
)

// Server to client
const (
	// EventServerMessage delivers a persisted message on its conversation channel.
	EventServerMessage = "server_message"

	// EventNotification tells a personal channel that a message arrived in
	// some conversation, so a client not subscribed there can join/refresh.
	EventNotification = "notification"

	// EventMessageAck returns the persisted message to the sending connection.
	EventMessageAck = "message_ack"

	// EventError reports a rejected inbound event.
	EventError = "error"
)

// WsEvent is the envelope for everything crossing the live channel.
type WsEvent struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClientMessage is the inbound send request.
type ClientMessage struct {
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
}

// ServerMessage carries a persisted message to conversation subscribers.
type ServerMessage struct {
	ConversationID string        `json:"conversationId"`
	Message        model.Message `json:"message"`
}

// Notification is the personal-channel ping for out-of-conversation delivery.
type Notification struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
}

// ErrorPayload is sent on EventError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
