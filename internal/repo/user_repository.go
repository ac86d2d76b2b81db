package repo

import (
	"context"
	"errors"
	"fmt"

	"Teamdesk/internal/db"
	"Teamdesk/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// UserRepository reads the contact directory. The documents are owned by
// the HR/auth modules; chat never writes them.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListContacts(ctx context.Context, selfID string) ([]model.Contact, error)
}

type userRepository struct {
	mongoRepo *db.Repository[model.User]
	logger    *zap.Logger
}

func NewUserRepository(repo *db.Repository[model.User], logger *zap.Logger) UserRepository {
	return &userRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *userRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, ErrInvalidActor
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", id).Build()

	user, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch user failed: %w", err)
	}
	return user, nil
}

// ListContacts returns every active user except the caller.
func (r *userRepository) ListContacts(ctx context.Context, selfID string) ([]model.Contact, error) {
	if selfID == "" {
		return nil, ErrInvalidActor
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("is_active", true).
		Ne("user_id", selfID).
		Build()
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}})

	users, err := r.mongoRepo.FindAll(ctx, filter, opts)
	if err != nil {
		r.logger.Error("failed to list contacts",
			zap.String("actor", selfID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list contacts failed: %w", err)
	}

	contacts := make([]model.Contact, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, model.ContactOf(u))
	}
	return contacts, nil
}
