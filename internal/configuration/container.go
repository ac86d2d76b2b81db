package configuration

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"Teamdesk/internal/db"
	"Teamdesk/internal/handler"
	"Teamdesk/internal/hub"
	"Teamdesk/internal/model"
	"Teamdesk/internal/repo"
	"Teamdesk/internal/service"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	ChatHandler    handler.ChatHandler
	MonitorHandler handler.MonitorHandler
	Hub            *hub.Hub
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer() (*Container, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := os.Getenv("CHAT_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	if err := db.EnsureChatIndexes(context.Background(), con,
		config.ChatDatabase.MessagesCollection,
		config.ChatDatabase.ConversationsCollection,
		config.ChatDatabase.UsersCollection,
	); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	logger, _ := zap.NewProduction()

	messageRepo := repo.NewMessageRepository(
		db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection), logger)
	conversationRepo := repo.NewConversationRepository(
		db.NewRepository[model.Conversation](con, config.ChatDatabase.ConversationsCollection), logger)
	userRepo := repo.NewUserRepository(
		db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection), logger)

	// The hub and the service reference each other through interfaces: the
	// service publishes through the hub, the hub sends through the service.
	chatHub := hub.NewHub(config.Server.AllowedOrigins)
	chatService := service.NewChatService(messageRepo, conversationRepo, userRepo, chatHub, logger)
	chatHub.BindService(chatService)

	chatHandler := handler.NewChatHandler(chatService)
	monitorHandler := handler.NewMonitorHandler(hub.NewMonitorService(chatHub))

	return &Container{
		ChatHandler:    chatHandler,
		MonitorHandler: monitorHandler,
		Hub:            chatHub,
		Config:         *config,
		Logger:         logger,
		mongoClient:    con,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
