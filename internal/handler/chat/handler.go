package chat

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hooma-ai/chatbot-backend/internal/sanitize"
	chatService "github.com/hooma-ai/chatbot-backend/internal/service/chat"
	"github.com/hooma-ai/chatbot-backend/pkg/utils"
)

// Handler exposes the chat pipeline over HTTP.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates the chat handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the chat endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	UserInfo  map[string]any `json:"user_info"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.chatSvc.Respond(r.Context(), chatService.Input{
		Message:    payload.Message,
		SessionID:  payload.SessionID,
		ClientAddr: clientAddr(r),
		UserInfo:   payload.UserInfo,
	})
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{
		Response:  out.Response,
		SessionID: out.SessionID,
		Timestamp: out.Timestamp.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	var limited *chatService.RateLimitedError
	switch {
	case errors.Is(err, sanitize.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, "message must not be empty")
	case errors.Is(err, sanitize.ErrMessageTooLong):
		utils.RespondError(w, http.StatusBadRequest, "message exceeds maximum length")
	case errors.As(err, &limited):
		seconds := int(limited.RetryAfter.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		utils.RespondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "rate limit exceeded",
			"retry_after": seconds,
		})
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		// Client disconnected; nothing useful to write.
	default:
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

// clientAddr extracts the client address used as the rate-limit key. The
// RealIP middleware has already folded X-Forwarded-For into RemoteAddr.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
