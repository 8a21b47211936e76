package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/database"
	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/model"
	"github.com/openclaw/chat-relay-go/internal/repository"
	"github.com/openclaw/chat-relay-go/internal/util"
)

const maxContentBytes = 16 * 1024

// ChatStore is the persistence store behind the relay: users, chats and
// message history.
type ChatStore struct {
	db       *database.DB
	userRepo repository.UserRepository
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
}

func NewChatStore(
	db *database.DB,
	userRepo repository.UserRepository,
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
) *ChatStore {
	return &ChatStore{
		db:       db,
		userRepo: userRepo,
		convRepo: convRepo,
		msgRepo:  msgRepo,
	}
}

func (s *ChatStore) CreateUser(ctx context.Context, username, password string) (*model.User, error) {
	if !util.IsValidUsername(username) {
		return nil, apperrors.InvalidInput("username", "1-32 letters, digits, '.', '-' or '_'")
	}
	if !util.IsValidPassword(password) {
		return nil, apperrors.InvalidInput("password", fmt.Sprintf("1-%d bytes", util.MaxPasswordBytes))
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, apperrors.Internal("hash password").WithCause(err)
	}

	user, err := s.userRepo.Create(ctx, model.CreateUserParams{
		Username:     username,
		PasswordHash: hash,
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("User")
		}
		return nil, apperrors.Database(err)
	}

	log.Info().Str("username", username).Msg("user created")
	return user, nil
}

func (s *ChatStore) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if user == nil {
		return false, nil
	}
	return util.CheckPasswordHash(password, user.PasswordHash), nil
}

func (s *ChatStore) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	users, err := s.userRepo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return users, nil
}

// DeleteAllUsers wipes every user together with all chats and messages in
// one transaction.
func (s *ChatStore) DeleteAllUsers(ctx context.Context) (*model.PurgeResult, error) {
	var result model.PurgeResult
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if result.Messages, err = s.msgRepo.WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		if result.Chats, err = s.convRepo.WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		result.Users, err = s.userRepo.WithTx(tx).DeleteAll(ctx)
		return err
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Warn().
		Int64("users", result.Users).
		Int64("chats", result.Chats).
		Int64("messages", result.Messages).
		Msg("all users deleted")
	return &result, nil
}

func (s *ChatStore) CreateChat(ctx context.Context, params model.CreateChatParams) (*model.Conversation, error) {
	participants := []string{params.Creator}
	for _, t := range params.Targets {
		t = strings.TrimSpace(t)
		if t == "" || t == params.Creator || slices.Contains(participants, t) {
			continue
		}
		participants = append(participants, t)
	}

	others := len(participants) - 1
	switch {
	case others == 0:
		return nil, apperrors.MissingRequired("target")
	case !params.IsGroup && others != 1:
		return nil, apperrors.InvalidInput("target", "a private chat has exactly one other participant")
	}

	existing, err := s.userRepo.CountExisting(ctx, participants)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != len(participants) {
		return nil, apperrors.NotFound("User")
	}

	name := strings.TrimSpace(params.ChatName)
	if name == "" {
		name = strings.Join(participants, "-")
	}

	var conv *model.Conversation
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		conv, err = s.convRepo.WithTx(tx).Create(ctx, model.CreateConversationParams{
			ChatName:     name,
			IsGroup:      params.IsGroup,
			CreatedBy:    params.Creator,
			Participants: participants,
		})
		return err
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("chatId", conv.ID).
		Str("creator", params.Creator).
		Strs("participants", participants).
		Bool("isGroup", params.IsGroup).
		Msg("chat created")

	return conv, nil
}

func (s *ChatStore) GetChat(ctx context.Context, chatID string) (*model.Conversation, error) {
	conv, err := s.convRepo.FindByID(ctx, chatID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if conv == nil {
		return nil, apperrors.NotFound("Chat")
	}
	return conv, nil
}

func (s *ChatStore) GetUserChats(ctx context.Context, username string) ([]model.Conversation, error) {
	convs, err := s.convRepo.FindByParticipant(ctx, username)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return convs, nil
}

func (s *ChatStore) GetChatMessages(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	msgs, err := s.msgRepo.FindRecentByChatID(ctx, chatID, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return msgs, nil
}

func (s *ChatStore) SaveMessage(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	if params.Content == "" {
		return nil, apperrors.MissingRequired("content")
	}
	if len(params.Content) > maxContentBytes {
		return nil, apperrors.InvalidInput("content", "too long")
	}

	msg, err := s.msgRepo.Create(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return msg, nil
}
