package handler

import (
	"net/http"
	"strconv"

	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
)

// User listings are paged. Oversize limits are clamped to MaxUserPage.
const (
	DefaultUserPage = 100
	MaxUserPage     = 1000
)

type Page struct {
	Limit  int
	Offset int
}

func parsePage(r *http.Request) (Page, error) {
	page := Page{Limit: DefaultUserPage}
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return Page{}, apperrors.InvalidInput("limit", "must be an integer")
		}
		switch {
		case limit > MaxUserPage:
			page.Limit = MaxUserPage
		case limit > 0:
			page.Limit = limit
		}
	}

	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return Page{}, apperrors.InvalidInput("offset", "must be a non-negative integer")
		}
		page.Offset = offset
	}
	return page, nil
}
