package model

import (
	"time"
)

type User struct {
	ID           string    `db:"id" json:"_id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type CreateUserParams struct {
	Username     string
	PasswordHash string
}

// PurgeResult counts the rows removed by a full user wipe.
type PurgeResult struct {
	Users    int64 `json:"users"`
	Chats    int64 `json:"chats"`
	Messages int64 `json:"messages"`
}
