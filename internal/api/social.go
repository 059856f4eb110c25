package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/qianban/qianban/internal/storage"
)

func handleListFriends(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		friends, err := deps.Store.ListFriends()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list friends: %v", err)
			return
		}
		if friends == nil {
			friends = []storage.Friend{}
		}
		writeJSON(w, friends)
	}
}

func handleAddFriend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var f storage.Friend
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(f.Name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		f.CreatedAt = time.Now().UTC()
		if err := deps.Store.SaveFriend(f); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save friend: %v", err)
			return
		}
		writeJSON(w, f)
	}
}

func handleDeleteFriend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteFriend(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "friend not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete friend: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleListActivities(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activities, err := deps.Store.ListActivities()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list activities: %v", err)
			return
		}
		if activities == nil {
			activities = []storage.Activity{}
		}
		writeJSON(w, activities)
	}
}

func handleAddActivity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var a storage.Activity
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(a.Title) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if a.Capacity < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "capacity must not be negative")
			return
		}
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		a.Joined = 0
		a.CreatedAt = time.Now().UTC()
		if err := deps.Store.SaveActivity(a); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save activity: %v", err)
			return
		}
		writeJSON(w, a)
	}
}

func handleGetActivity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := deps.Store.GetActivity(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get activity: %v", err)
			return
		}
		writeJSON(w, a)
	}
}

func handleJoinActivity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.JoinActivity(id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		case errors.Is(err, storage.ErrActivityFull):
			httpError(w, http.StatusConflict, "conflict", "activity is full")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to join activity: %v", err)
			return
		}
		a, err := deps.Store.GetActivity(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get activity: %v", err)
			return
		}
		writeJSON(w, a)
	}
}

func handleDeleteActivity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteActivity(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete activity: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		interactions, err := deps.Store.ListInteractions(deps.ProfileID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		writeJSON(w, interactions)
	}
}
