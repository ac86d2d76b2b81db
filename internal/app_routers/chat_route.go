package approuters

import (
	"Teamdesk/internal/configuration"
	"Teamdesk/internal/middleware"

	"github.com/gin-gonic/gin"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/td/api/chat")
	chatRoute.Use(middleware.ActorAuth(container.Config.Auth.JwtSecret))
	{
		chatRoute.GET("/conversations", container.ChatHandler.ListConversations)
		chatRoute.GET("/contacts", container.ChatHandler.ListContacts)
		chatRoute.GET("/conversations/:conversationKey/messages", container.ChatHandler.GetConversationMessages)
		chatRoute.POST("/messages", container.ChatHandler.SendMessage)
		chatRoute.DELETE("/conversations/:conversationKey", container.ChatHandler.DeleteConversation)
	}
}
