// Package api exposes the companion daemon over HTTP. All routes except
// /health require the daemon's bearer token.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/qianban/qianban/internal/companion"
	"github.com/qianban/qianban/internal/interest"
	"github.com/qianban/qianban/internal/llm"
	"github.com/qianban/qianban/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Chat abstracts the companion for the HTTP layer.
type Chat interface {
	Respond(ctx context.Context, profileID, message string, provider llm.Provider) (companion.Reply, error)
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store     *storage.Store
	Book      *interest.Book
	Companion Chat
	ProfileID string
	Token     string
}

// NewHandler builds the daemon's router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/chat", handleChat(deps))

		r.Get("/interests", handleListInterests(deps))
		r.Post("/interests", handleAddInterest(deps))
		r.Put("/interests", handleSetInterests(deps))
		r.Delete("/interests", handleClearInterests(deps))
		r.Get("/interests/prompt", handleInterestPrompt(deps))
		// POST: each call advances and persists the question cursor.
		r.Post("/interests/next-question", handleNextQuestion(deps))

		r.Get("/friends", handleListFriends(deps))
		r.Post("/friends", handleAddFriend(deps))
		r.Delete("/friends/{id}", handleDeleteFriend(deps))

		r.Get("/activities", handleListActivities(deps))
		r.Post("/activities", handleAddActivity(deps))
		r.Get("/activities/{id}", handleGetActivity(deps))
		r.Post("/activities/{id}/join", handleJoinActivity(deps))
		r.Delete("/activities/{id}", handleDeleteActivity(deps))

		r.Get("/health-records", handleListHealthRecords(deps))
		r.Post("/health-records", handleAddHealthRecord(deps))
		r.Post("/health-records/import", handleImportReport(deps))
		r.Delete("/health-records/{id}", handleDeleteHealthRecord(deps))

		r.Get("/interactions", handleListInteractions(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
