package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"Teamdesk/internal/event"
	"Teamdesk/internal/model"
	"Teamdesk/pkg/apperr"

	"github.com/gorilla/websocket"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load

	personalChannelPrefix = "user:"
)

// PersonalChannel is the per-actor notification channel name.
func PersonalChannel(actorID string) string {
	return personalChannelPrefix + actorID
}

// ChatService is the slice of the orchestrator the hub needs: sending on
// behalf of a connection and resolving the channels a join subscribes to.
type ChatService interface {
	Send(ctx context.Context, sender, receiver, text string) (*model.Message, error)
	ConversationKeysFor(ctx context.Context, actor string) ([]string, error)
}

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type channelBucket struct {
	sync.RWMutex
	rooms map[string]map[string]*Client
}

// Hub is the delivery channel: a sharded registry of channels (personal and
// per-conversation) with fan-out that never blocks the send path. Channel
// membership is ephemeral session state, rebuilt on every join - it is never
// consulted for authorization.
type Hub struct {
	shards     [shardCount]*channelBucket
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage

	// connected clients by client id, across all channels
	clients   map[string]*Client
	clientsMu sync.RWMutex

	chat           ChatService
	allowedOrigins map[string]struct{}

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewHub(allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		register:       make(chan *Client, 1024),
		unregister:     make(chan *Client, 1024),
		inbound:        make(chan inboundMessage, 4096), // buffer for burst handling
		clients:        make(map[string]*Client),
		allowedOrigins: make(map[string]struct{}, len(allowedOrigins)),
		ctx:            ctx,
		cancel:         cancel,
	}

	for _, origin := range allowedOrigins {
		h.allowedOrigins[origin] = struct{}{}
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &channelBucket{
			rooms: make(map[string]map[string]*Client),
		}
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}

					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

// BindService attaches the orchestrator. Must be called before ServeWS;
// split from NewHub because the service itself publishes through the hub.
func (h *Hub) BindService(chat ChatService) {
	h.chat = chat
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventJoin:
		h.joinChannels(c)
	case event.EventClientMessage:
		h.handleClientMessage(ev, c)
	default:
		log.Printf("unknown event type: %s", ev.Event)
		h.sendError(c, "unknown_event", "unsupported event type")
	}
}

// joinChannels is the explicit handshake: subscribe the connection to its
// personal channel and to one channel per existing conversation. A client
// that never joins receives no live traffic.
func (h *Hub) joinChannels(c *Client) {
	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	keys, err := h.chat.ConversationKeysFor(ctx, c.userID)
	if err != nil {
		log.Printf("join failed for user %s: %v", c.userID, err)
		h.sendError(c, "join_failed", "could not resolve conversations")
		return
	}

	h.subscribe(c, PersonalChannel(c.userID))
	for _, key := range keys {
		h.subscribe(c, key)
	}

	log.Printf("client %s joined %d channels for user %s", c.ID, len(keys)+1, c.userID)
}

// handleClientMessage runs the live-channel send through the same
// orchestrator as the HTTP endpoint. The sender identity always comes from
// the authenticated connection, never from the payload.
func (h *Hub) handleClientMessage(ev event.WsEvent, c *Client) {
	var payload event.ClientMessage
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		log.Printf("failed to unmarshal client message: %v", err)
		h.sendError(c, "invalid_payload", "failed to parse message")
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	msg, err := h.chat.Send(ctx, c.userID, payload.ReceiverID, payload.Body)
	if err != nil {
		log.Printf("send failed for user %s: %v", c.userID, err)
		h.sendError(c, string(apperr.CodeOf(err)), "message rejected")
		return
	}

	// The service already published to the conversation channel; the ack
	// goes to the sending connection only, for its own reconciliation.
	ack, err := json.Marshal(event.ServerMessage{
		ConversationID: msg.ConversationKey,
		Message:        *msg,
	})
	if err != nil {
		log.Printf("failed to marshal ack: %v", err)
		return
	}
	c.SafeSend(event.WsEvent{
		Event:   event.EventMessageAck,
		Channel: msg.ConversationKey,
		Payload: ack,
	}, sendTimeout)

	// A brand-new conversation has no channel membership yet; subscribe the
	// sender so follow-up replies arrive live.
	h.subscribe(c, msg.ConversationKey)
}

// PublishMessage fans a persisted message out to every subscriber of its
// conversation channel. At-most-once per connected subscriber, no replay.
func (h *Hub) PublishMessage(conversationKey string, msg model.Message) {
	payload, err := json.Marshal(event.ServerMessage{
		ConversationID: conversationKey,
		Message:        msg,
	})
	if err != nil {
		log.Printf("failed to marshal server message: %v", err)
		return
	}

	h.publish(conversationKey, event.WsEvent{
		Event:   event.EventServerMessage,
		Channel: conversationKey,
		Payload: payload,
	})
}

// PublishNotification pings the receiver's personal channel so a client not
// subscribed to that conversation still learns a message arrived.
func (h *Hub) PublishNotification(actorID, conversationKey, senderID string) {
	payload, err := json.Marshal(event.Notification{
		ConversationID: conversationKey,
		SenderID:       senderID,
	})
	if err != nil {
		log.Printf("failed to marshal notification: %v", err)
		return
	}

	h.publish(PersonalChannel(actorID), event.WsEvent{
		Event:   event.EventNotification,
		Channel: PersonalChannel(actorID),
		Payload: payload,
	})
}

// publish delivers an event to every subscriber of one channel. An empty
// channel is not an error; offline parties recover by re-fetching.
func (h *Hub) publish(channel string, ev event.WsEvent) {
	sh := getShard(channel)
	b := h.shards[sh]

	// collect clients while holding RLock
	b.RLock()
	room, ok := b.rooms[channel]
	if !ok || len(room) == 0 {
		b.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	b.RUnlock()

	// deliver to clients without holding lock; SafeSend refuses closed
	// clients, so a connection tearing down mid-publish cannot panic the
	// fan-out
	for _, c := range clients {
		if c.SafeSend(ev, sendTimeout) {
			continue
		}

		// egress full or client gone -> apply policy
		log.Printf("egress unavailable for client %s in channel %s", c.ID, channel)
		if kickOnFull {
			// Unregister (safe async)
			h.unregister <- c
		} else {
			// drop message (do nothing)
		}
	}
}

func (h *Hub) sendError(c *Client, code, message string) {
	payload, err := json.Marshal(event.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.SafeSend(event.WsEvent{Event: event.EventError, Payload: payload}, sendTimeout)
}

func getShard(channel string) uint32 {
	if channel == "" {
		return 0
	}

	h := sha1.Sum([]byte(channel))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

func (h *Hub) subscribe(c *Client, channel string) {
	sh := getShard(channel)
	b := h.shards[sh]
	b.Lock()
	defer b.Unlock()

	room, ok := b.rooms[channel]
	if !ok {
		room = make(map[string]*Client)
		b.rooms[channel] = room
	}

	room[c.ID] = c
	c.trackChannel(channel)
}

func (h *Hub) addClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c.ID] = c
	h.clientsMu.Unlock()

	log.Printf("client %s registered for user %s", c.ID, c.userID)
}

func (h *Hub) removeClient(c *Client) {
	for _, channel := range c.channelList() {
		sh := getShard(channel)
		b := h.shards[sh]
		b.Lock()
		if room, ok := b.rooms[channel]; ok {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(b.rooms, channel)
			}
		}
		b.Unlock()
	}

	h.clientsMu.Lock()
	delete(h.clients, c.ID)
	h.clientsMu.Unlock()

	c.Close()
	log.Printf("client %s removed", c.ID)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Stop is idempotent: the server shutdown sequence and the container
// cleanup both call it.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		h.clientsMu.RLock()
		for _, client := range h.clients {
			client.Close()
		}
		h.clientsMu.RUnlock()

		close(h.inbound)
		h.wg.Wait()
	})
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	_, ok := h.allowedOrigins[origin]
	return ok
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	RegisterClient(userID, conn, h)
}
