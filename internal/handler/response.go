package handler

import (
	"net/http"
	"time"

	"github.com/openclaw/chat-relay-go/internal/httputil"
	"github.com/openclaw/chat-relay-go/internal/model"
	"github.com/openclaw/chat-relay-go/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatSession(info session.Info) map[string]any {
	return map[string]any{
		"id":           info.ID,
		"username":     info.Username,
		"state":        info.State,
		"livenessAddr": info.LivenessAddr,
		"commandAddr":  info.CommandAddr,
		"createdAt":    formatTime(info.CreatedAt),
		"lastSeenAt":   formatTime(info.LastSeenAt),
	}
}

func formatUser(user model.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"username":  user.Username,
		"createdAt": formatTime(user.CreatedAt),
	}
}
