package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/qianban/qianban/internal/llm"
)

type chatRequest struct {
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		provider, err := llm.ParseProvider(req.Provider)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		reply, err := deps.Companion.Respond(r.Context(), deps.ProfileID, req.Message, provider)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "chat failed: %v", err)
			return
		}

		writeJSON(w, reply)
	}
}
