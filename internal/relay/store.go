package relay

import (
	"context"
	"time"

	"github.com/openclaw/chat-relay-go/internal/model"
	"github.com/openclaw/chat-relay-go/internal/service"
)

// Store is the persistence collaborator the relay calls into.
type Store interface {
	CreateUser(ctx context.Context, username, password string) (*model.User, error)
	VerifyUser(ctx context.Context, username, password string) (bool, error)
	CreateChat(ctx context.Context, params model.CreateChatParams) (*model.Conversation, error)
	GetChat(ctx context.Context, chatID string) (*model.Conversation, error)
	GetUserChats(ctx context.Context, username string) ([]model.Conversation, error)
	GetChatMessages(ctx context.Context, chatID string, limit int) ([]model.Message, error)
	SaveMessage(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
}

var _ Store = (*service.ChatStore)(nil)

// LoginLimiter throttles LOGIN attempts per username across sessions.
type LoginLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

var (
	_ LoginLimiter = (*service.RateLimiter)(nil)
	_ LoginLimiter = (*service.MemoryRateLimiter)(nil)
)
