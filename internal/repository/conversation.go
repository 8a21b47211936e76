package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/chat-relay-go/internal/database"
	"github.com/openclaw/chat-relay-go/internal/model"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByParticipant(ctx context.Context, username string) ([]model.Conversation, error)
	Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error)
	// DeleteAll removes every chat and its participant rows.
	DeleteAll(ctx context.Context) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ConversationRepository
}

type conversationRepo struct {
	db database.DBTX
}

func NewConversationRepository(db database.DBTX) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) WithTx(tx *sqlx.Tx) ConversationRepository {
	return &conversationRepo{db: tx}
}

func (r *conversationRepo) DeleteAll(ctx context.Context) (int64, error) {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chat_participants`); err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM chats`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *conversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, r.db.Rebind(`
		SELECT id, chat_name, is_group, created_by, created_at FROM chats WHERE id = ?
	`), id)
	found, err := HandleNotFound(&conv, err)
	if err != nil || found == nil {
		return nil, err
	}

	convs := []model.Conversation{*found}
	if err := r.attachParticipants(ctx, convs); err != nil {
		return nil, err
	}
	return &convs[0], nil
}

func (r *conversationRepo) FindByParticipant(ctx context.Context, username string) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, r.db.Rebind(`
		SELECT c.id, c.chat_name, c.is_group, c.created_by, c.created_at
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.username = ?
		ORDER BY c.created_at ASC, c.id ASC
	`), username)
	if err != nil {
		return nil, err
	}
	if err := r.attachParticipants(ctx, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Create inserts the chat row and its participants. Callers wanting
// atomicity run it on a repository bound to a transaction.
func (r *conversationRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	conv := model.Conversation{
		ID:           id,
		ChatName:     params.ChatName,
		IsGroup:      params.IsGroup,
		Participants: params.Participants,
		CreatedBy:    params.CreatedBy,
		CreatedAt:    now(),
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO chats (id, chat_name, is_group, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), conv.ID, conv.ChatName, conv.IsGroup, conv.CreatedBy, conv.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i, username := range conv.Participants {
		_, err := r.db.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO chat_participants (chat_id, username, position)
			VALUES (?, ?, ?)
		`), conv.ID, username, i)
		if err != nil {
			return nil, err
		}
	}

	return &conv, nil
}

func (r *conversationRepo) attachParticipants(ctx context.Context, convs []model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}

	ids := make([]string, len(convs))
	index := make(map[string]int, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
		index[c.ID] = i
		convs[i].Participants = []string{}
	}

	query, args, err := sqlxIn(`
		SELECT chat_id, username FROM chat_participants
		WHERE chat_id IN (?)
		ORDER BY chat_id, position
	`, ids)
	if err != nil {
		return err
	}

	var rows []model.Participant
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, row := range rows {
		i := index[row.ChatID]
		convs[i].Participants = append(convs[i].Participants, row.Username)
	}
	return nil
}

func sqlxIn(query string, values []string) (string, []interface{}, error) {
	return sqlx.In(query, values)
}
