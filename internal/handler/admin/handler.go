// Package admin exposes aggregated conversation statistics behind HTTP
// basic auth. The operator dashboard consuming these endpoints lives
// outside this service.
package admin

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hooma-ai/chatbot-backend/internal/config"
	"github.com/hooma-ai/chatbot-backend/internal/model/chat"
	chatService "github.com/hooma-ai/chatbot-backend/internal/service/chat"
	"github.com/hooma-ai/chatbot-backend/pkg/utils"
)

const (
	defaultConversationLimit = 10
	maxConversationLimit     = 50
	recentMessageCount       = 3
)

// Handler serves the operator statistics endpoints.
type Handler struct {
	store *chatService.Store
	cfg   config.AdminConfig
}

// New creates the admin handler.
func New(store *chatService.Store, cfg config.AdminConfig) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// RegisterRoutes mounts the admin routes behind basic auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.basicAuth)
		r.Get("/stats", h.handleStats)
		r.Get("/conversations", h.handleConversations)
	})
}

// basicAuth compares credentials in constant time so a probe cannot learn
// the username or password length from response timing.
func (h *Handler) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.cfg.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.cfg.Password)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			utils.RespondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.CollectStats(time.Now().UTC()))
}

type conversationSummary struct {
	SessionID      string         `json:"session_id"`
	LastActivity   string         `json:"last_activity"`
	MessageCount   int            `json:"message_count"`
	RecentMessages []chat.Message `json:"recent_messages"`
	UserInfo       map[string]any `json:"user_info,omitempty"`
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit := defaultConversationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	if limit > maxConversationLimit {
		limit = maxConversationLimit
	}

	sessions := h.store.Recent(limit)
	summaries := make([]conversationSummary, 0, len(sessions))
	for _, sess := range sessions {
		recent := sess.Messages
		if len(recent) > recentMessageCount {
			recent = recent[len(recent)-recentMessageCount:]
		}
		summaries = append(summaries, conversationSummary{
			SessionID:      truncateID(sess.ID),
			LastActivity:   sess.LastActiveAt.UTC().Format("2006-01-02 15:04 UTC"),
			MessageCount:   len(sess.Messages),
			RecentMessages: recent,
			UserInfo:       sess.UserInfo,
		})
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

// truncateID keeps summaries reviewable without exposing a usable session id.
func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
