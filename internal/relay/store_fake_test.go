package relay

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/model"
)

// fakeStore is an in-memory Store for exercising the relay over real
// sockets without a database.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]string
	chats    []model.Conversation
	messages map[string][]model.Message
	nextID   int
	saveErr  error
	lookups  map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]string),
		messages: make(map[string][]model.Message),
		lookups:  make(map[string]int),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) CreateUser(ctx context.Context, username, password string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if username == "" || password == "" {
		return nil, apperrors.InvalidInput("username", "empty")
	}
	if _, ok := f.users[username]; ok {
		return nil, apperrors.AlreadyExists("User")
	}
	f.users[username] = password
	return &model.User{ID: f.id("user"), Username: username, CreatedAt: time.Now()}, nil
}

func (f *fakeStore) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.users[username]
	return ok && stored == password, nil
}

func (f *fakeStore) CreateChat(ctx context.Context, params model.CreateChatParams) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	participants := []string{params.Creator}
	for _, t := range params.Targets {
		if t != params.Creator && !slices.Contains(participants, t) {
			participants = append(participants, t)
		}
	}
	if len(participants) < 2 {
		return nil, apperrors.MissingRequired("target")
	}
	if !params.IsGroup && len(participants) != 2 {
		return nil, apperrors.InvalidInput("target", "private chat")
	}
	for _, p := range participants {
		if _, ok := f.users[p]; !ok {
			return nil, apperrors.NotFound("User")
		}
	}

	name := params.ChatName
	if name == "" {
		name = strings.Join(participants, "-")
	}
	conv := model.Conversation{
		ID:           f.id("chat"),
		ChatName:     name,
		IsGroup:      params.IsGroup,
		Participants: participants,
		CreatedBy:    params.Creator,
		CreatedAt:    time.Now(),
	}
	f.chats = append(f.chats, conv)
	return &conv, nil
}

func (f *fakeStore) GetChat(ctx context.Context, chatID string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.chats {
		if c.ID == chatID {
			conv := c
			return &conv, nil
		}
	}
	return nil, apperrors.NotFound("Chat")
}

func (f *fakeStore) GetUserChats(ctx context.Context, username string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lookups[username]++
	out := []model.Conversation{}
	for _, c := range f.chats {
		if c.HasParticipant(username) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetChatMessages(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := f.messages[chatID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]model.Message{}, msgs...), nil
}

func (f *fakeStore) SaveMessage(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return nil, f.saveErr
	}
	msg := model.Message{
		ID:        f.id("msg"),
		ChatID:    params.ChatID,
		Username:  params.Username,
		Content:   params.Content,
		Timestamp: time.Now().UTC(),
	}
	f.messages[params.ChatID] = append(f.messages[params.ChatID], msg)
	return &msg, nil
}

func (f *fakeStore) setSaveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

func (f *fakeStore) saved(chatID string) []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message{}, f.messages[chatID]...)
}

func (f *fakeStore) addUser(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username] = password
}

// chatLookups counts GetUserChats calls for username.
func (f *fakeStore) chatLookups(username string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups[username]
}
