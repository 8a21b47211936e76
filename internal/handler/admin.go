package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/audit"
	"github.com/openclaw/chat-relay-go/internal/httputil"
	"github.com/openclaw/chat-relay-go/internal/model"
	"github.com/openclaw/chat-relay-go/internal/session"
)

// SessionMonitor exposes the relay's live sessions to operators.
type SessionMonitor interface {
	Sessions() []session.Info
	SessionCount() int
	Kick(username string) bool
	KickAll() int
}

type UserStore interface {
	ListUsers(ctx context.Context, limit, offset int) ([]model.User, error)
	DeleteAllUsers(ctx context.Context) (*model.PurgeResult, error)
}

type AdminHandler struct {
	monitor SessionMonitor
	users   UserStore
}

func NewAdminHandler(monitor SessionMonitor, users UserStore) *AdminHandler {
	return &AdminHandler{
		monitor: monitor,
		users:   users,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/sessions", h.ListSessions)
	r.Delete("/sessions/{username}", h.KickSession)
	r.Get("/users", h.ListUsers)
	r.Delete("/users", h.DeleteAllUsers)

	return r
}

func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.monitor.Sessions()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	result := make([]map[string]any, len(infos))
	for i, info := range infos {
		result[i] = formatSession(info)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": result,
		"total":    len(result),
	})
}

func (h *AdminHandler) KickSession(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if !h.monitor.Kick(username) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No live session for user"})
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventSessionKicked,
		Username: username,
		Details:  map[string]interface{}{"by": "admin_api"},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	users, err := h.users.ListUsers(r.Context(), p.Limit, p.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list users")
		httputil.WriteError(w, err)
		return
	}

	result := make([]map[string]any, len(users))
	for i, user := range users {
		result[i] = formatUser(user)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":  result,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// DeleteAllUsers disconnects everyone, then wipes users, chats and messages.
func (h *AdminHandler) DeleteAllUsers(w http.ResponseWriter, r *http.Request) {
	kicked := h.monitor.KickAll()

	result, err := h.users.DeleteAllUsers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to delete all users")
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type: audit.EventUsersPurged,
		Details: map[string]interface{}{
			"kicked":   kicked,
			"users":    result.Users,
			"chats":    result.Chats,
			"messages": result.Messages,
		},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"kicked":   kicked,
		"users":    result.Users,
		"chats":    result.Chats,
		"messages": result.Messages,
	})
}
