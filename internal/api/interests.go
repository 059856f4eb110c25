package api

import (
	"encoding/json"
	"net/http"

	"github.com/qianban/qianban/internal/interest"
)

func handleListInterests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items := deps.Book.Interests()
		if items == nil {
			items = []interest.Interest{}
		}
		writeJSON(w, items)
	}
}

func handleAddInterest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var item interest.Interest
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Book.Add(item); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, deps.Book.Interests())
	}
}

func handleSetInterests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var items []interest.Interest
		if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		deps.Book.Set(items)
		writeJSON(w, deps.Book.Interests())
	}
}

func handleClearInterests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Book.Clear()
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

func handleInterestPrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"prompt": deps.Book.SummaryPrompt()})
	}
}

func handleNextQuestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		question := deps.Book.NextQuestion()
		writeJSON(w, map[string]any{
			"question":    question,
			"asked":       deps.Book.AskedQuestions(),
			"show_dialog": deps.Book.ShouldShowDialog(),
		})
	}
}
