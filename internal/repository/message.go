package repository

import (
	"context"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/chat-relay-go/internal/database"
	"github.com/openclaw/chat-relay-go/internal/model"
)

type MessageRepository interface {
	FindRecentByChatID(ctx context.Context, chatID string, limit int) ([]model.Message, error)
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	DeleteAll(ctx context.Context) (int64, error)
	WithTx(tx *sqlx.Tx) MessageRepository
}

type messageRepo struct {
	db database.DBTX
}

func NewMessageRepository(db database.DBTX) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) MessageRepository {
	return &messageRepo{db: tx}
}

// FindRecentByChatID returns at most limit of the newest messages, oldest first.
func (r *messageRepo) FindRecentByChatID(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	msgs := []model.Message{}
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`
		SELECT * FROM messages
		WHERE chat_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?
	`), chatID, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *messageRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM messages`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	msg := model.Message{
		ID:        id,
		ChatID:    params.ChatID,
		Username:  params.Username,
		Content:   params.Content,
		Timestamp: now(),
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO messages (id, chat_id, username, content, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`), msg.ID, msg.ChatID, msg.Username, msg.Content, msg.Timestamp)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
