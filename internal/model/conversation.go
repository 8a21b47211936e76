package model

import (
	"slices"
	"time"
)

type Conversation struct {
	ID           string    `db:"id" json:"_id"`
	ChatName     string    `db:"chat_name" json:"chat_name"`
	IsGroup      bool      `db:"is_group" json:"is_group"`
	Participants []string  `db:"-" json:"participants"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether username is a member of the conversation.
func (c *Conversation) HasParticipant(username string) bool {
	return slices.Contains(c.Participants, username)
}

type CreateConversationParams struct {
	ChatName     string
	IsGroup      bool
	CreatedBy    string
	Participants []string
}

type Participant struct {
	ChatID   string `db:"chat_id"`
	Username string `db:"username"`
}

// CreateChatParams is a chat creation request as issued by a user: the
// creator plus the usernames they want to talk to.
type CreateChatParams struct {
	Creator  string
	Targets  []string
	IsGroup  bool
	ChatName string
}
