package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a directory document. It is owned by the HR/auth modules and
// read-only here; chat only needs it for the contact list.
type User struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID     string             `json:"userId" bson:"user_id"`
	Username   string             `json:"username" bson:"username"`
	Email      string             `json:"email" bson:"email"`
	IsEmployee bool               `json:"isEmployee" bson:"is_employee"`
	IsActive   bool               `json:"isActive" bson:"is_active"`
	CreatedAt  time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt  *time.Time         `json:"updatedAt" bson:"updated_at"`
}

// Contact is the directory view exposed to the chat client.
type Contact struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	IsEmployee bool   `json:"isEmployee"`
}

// ContactOf projects a user document into its contact view.
func ContactOf(u User) Contact {
	return Contact{
		UserID:     u.UserID,
		Username:   u.Username,
		Email:      u.Email,
		IsEmployee: u.IsEmployee,
	}
}
