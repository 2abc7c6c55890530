package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kalambet/aether/internal/orchestrator"
	"github.com/kalambet/aether/internal/prompt"
	"github.com/kalambet/aether/internal/provider"
	"github.com/kalambet/aether/internal/storage"
	"github.com/kalambet/aether/internal/web"
)

type ChatRequest struct {
	Message        string             `json:"message"`
	Context        string             `json:"context,omitempty"`
	SessionHistory []provider.Message `json:"session_history,omitempty"`
	// SessionID loads history from storage and records the new turns.
	SessionID string `json:"session_id,omitempty"`
	// NewSession starts a stored session when SessionID is empty.
	NewSession bool `json:"new_session,omitempty"`
}

type ChatResponse struct {
	orchestrator.Response
	SessionID string `json:"session_id,omitempty"`
}

type SummarizeRequest struct {
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
	Length  string `json:"length,omitempty"`
}

type SummarizeResponse struct {
	Summary string `json:"summary"`
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
	Cached  bool   `json:"cached,omitempty"`
}

type SuggestRequest struct {
	UserIntent string `json:"user_intent"`
}

type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		history := req.SessionHistory
		sessionID := req.SessionID
		if sessionID != "" || req.NewSession {
			if deps.Store == nil {
				httpError(w, http.StatusServiceUnavailable, "api_error", "session storage is not available")
				return
			}
			if sessionID == "" {
				sess, err := deps.Store.CreateSession("")
				if err != nil {
					httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
					return
				}
				sessionID = sess.ID
			} else {
				if _, err := deps.Store.GetSession(sessionID); errors.Is(err, storage.ErrNotFound) {
					httpError(w, http.StatusNotFound, "not_found", "session not found")
					return
				} else if err != nil {
					httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
					return
				}
				turns, err := deps.Store.RecentTurns(sessionID, prompt.MaxHistoryTurns)
				if err != nil {
					httpError(w, http.StatusInternalServerError, "api_error", "failed to load history: %v", err)
					return
				}
				history = make([]provider.Message, len(turns))
				for i, t := range turns {
					history[i] = provider.Message{Role: t.Role, Content: t.Content}
				}
			}
		}

		resp := deps.Orchestrator.GetResponse(r.Context(), orchestrator.Request{
			Message: req.Message,
			Context: req.Context,
			History: history,
		})

		if sessionID != "" {
			err := deps.Store.AppendTurns(sessionID,
				storage.Turn{Role: provider.RoleUser, Content: req.Message},
				storage.Turn{Role: provider.RoleAssistant, Content: resp.Text, Provider: string(resp.Provider), Cached: resp.Cached},
			)
			if err != nil {
				deps.Logger.Error("failed to record turns", "session_id", sessionID, "error", err)
			}
		}

		writeJSON(w, http.StatusOK, ChatResponse{Response: resp, SessionID: sessionID})
	}
}

func handleSummarize(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SummarizeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		length, err := orchestrator.ParseLength(req.Length)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		switch {
		case req.URL != "":
			page, err := deps.Orchestrator.SummarizePage(r.Context(), req.URL, length)
			if errors.Is(err, web.ErrInvalidURL) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "summarization failed: %v", err)
				return
			}
			writeJSON(w, http.StatusOK, SummarizeResponse{Summary: page.Summary, URL: page.URL, Title: page.Title, Cached: page.Cached})

		case strings.TrimSpace(req.Content) != "":
			summary, err := deps.Orchestrator.Summarize(r.Context(), req.Content, length)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "summarization failed: %v", err)
				return
			}
			writeJSON(w, http.StatusOK, SummarizeResponse{Summary: summary})

		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of content or url is required")
		}
	}
}

func handleSuggest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SuggestRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.UserIntent) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_intent is required")
			return
		}
		writeJSON(w, http.StatusOK, SuggestResponse{
			Suggestions: deps.Orchestrator.SuggestQueries(r.Context(), req.UserIntent),
		})
	}
}
