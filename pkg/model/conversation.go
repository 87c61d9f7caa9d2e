package model

import (
	"strings"
	"time"
)

type Conversation struct {
	ID              string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Participants    []string  `json:"participants" bson:"participants" validate:"required,len=2,dive,min=1,max=100"`
	ParticipantsKey string    `json:"-" bson:"participants_key" validate:"omitempty"`
	LastMessage     string    `json:"last_message" bson:"last_message" validate:"omitempty,max=500"`
	LatestMessageAt time.Time `json:"latest_message_at" bson:"latest_message_at" validate:"omitempty"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// HasParticipant reports whether the user is one of the two parties.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the first participant other than the given user.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// PairKey canonicalizes two user ids into an order-independent key. A unique
// index on the key makes concurrent first-contact creations converge on one
// conversation.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// ParticipantsFromKey is the inverse of PairKey.
func ParticipantsFromKey(key string) []string {
	return strings.SplitN(key, ":", 2)
}

type Message struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	ConversationID string    `json:"conversation_id" bson:"conversation_id" validate:"required,mongodb"`
	SenderID       string    `json:"sender_id" bson:"sender_id" validate:"required,min=1,max=100"`
	RecipientID    string    `json:"recipient_id" bson:"recipient_id" validate:"required,min=1,max=100"`
	Body           string    `json:"body" bson:"body" validate:"required,min=1,max=5000"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}
