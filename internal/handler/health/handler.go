package health

import (
	"net/http"
	"time"

	"github.com/hooma-ai/chatbot-backend/internal/config"
	"github.com/hooma-ai/chatbot-backend/pkg/utils"
)

// Version reported by the detailed probe.
const Version = "1.0.0"

// Handler answers liveness probes for the deployment platform.
type Handler struct {
	ai config.AIConfig
}

// New creates the health handler.
func New(ai config.AIConfig) *Handler {
	return &Handler{ai: ai}
}

// Liveness is the bare probe used by the platform's health check.
func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "hooma-chatbot",
	})
}

// Detail reports process status and the active provider identifier.
func (h *Handler) Detail(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     Version,
		"ai_provider": h.ai.HealthLabel(),
	})
}
