package model

import (
	"time"
)

// SystemAuthor is the author of notifications generated by the server itself.
const SystemAuthor = "Server"

type Message struct {
	ID        string    `db:"id" json:"_id,omitempty"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	Username  string    `db:"username" json:"username"`
	Content   string    `db:"content" json:"content"`
	Timestamp time.Time `db:"sent_at" json:"timestamp"`
}

type CreateMessageParams struct {
	ChatID   string
	Username string
	Content  string
}

// DepartureNotice is the transient message routed to a conversation when one
// of its participants disconnects. It is never persisted.
func DepartureNotice(chatID, username string, at time.Time) Message {
	return Message{
		ChatID:    chatID,
		Username:  SystemAuthor,
		Content:   username + " left the chat!",
		Timestamp: at,
	}
}
