package handler

import (
	"net/http"

	"Teamdesk/internal/middleware"
	"Teamdesk/internal/service"
	"Teamdesk/pkg/apperr"

	"github.com/gin-gonic/gin"
)

type ChatHandler interface {
	ListConversations(c *gin.Context)
	ListContacts(c *gin.Context)
	GetConversationMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	DeleteConversation(c *gin.Context)
}

type chatHandler struct {
	chat service.ChatService
}

func NewChatHandler(chat service.ChatService) ChatHandler {
	return &chatHandler{
		chat: chat,
	}
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	Body       string `json:"body" binding:"required"`
}

func (h *chatHandler) ListConversations(c *gin.Context) {
	actor := middleware.MustActorID(c)

	convs, err := h.chat.ListConversations(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": convs,
	})
}

func (h *chatHandler) ListContacts(c *gin.Context) {
	actor := middleware.MustActorID(c)

	contacts, err := h.chat.ListContacts(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contacts": contacts,
	})
}

// GetConversationMessages returns the log in send order and, as a side
// effect, marks the actor's messages read and resets their unread counter.
func (h *chatHandler) GetConversationMessages(c *gin.Context) {
	actor := middleware.MustActorID(c)
	conversationKey := c.Param("conversationKey")

	msgs, err := h.chat.OpenConversation(c.Request.Context(), actor, conversationKey)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
	})
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	actor := middleware.MustActorID(c)

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiverId and body are required"})
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), actor, req.ReceiverID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": msg,
	})
}

func (h *chatHandler) DeleteConversation(c *gin.Context) {
	actor := middleware.MustActorID(c)
	conversationKey := c.Param("conversationKey")

	if err := h.chat.DeleteConversation(c.Request.Context(), actor, conversationKey); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted": conversationKey,
	})
}

// respondError maps service error codes to HTTP statuses. Internal causes
// never reach the client.
func respondError(c *gin.Context, err error) {
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidArgument:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.CodePermissionDenied:
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case apperr.CodeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.CodeUnauthenticated:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
