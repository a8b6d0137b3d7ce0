package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ezcommon/apply-portal/internal/auth"
	"github.com/ezcommon/apply-portal/internal/handler/dto"
	"github.com/ezcommon/apply-portal/internal/llm"
	"github.com/ezcommon/apply-portal/internal/service"
)

// ChatHandler handles the assistant chat endpoint.
type ChatHandler struct {
	svc    *service.ChatService
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// Chat handles POST /api/v1/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustAuthFromContext(r.Context())

	var req dto.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "NO_MESSAGES", "At least one message is required")
		return
	}

	history := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		// Clients supply user and assistant turns; the system prompt is
		// not theirs to set.
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	if len(history) == 0 {
		writeError(w, http.StatusBadRequest, "NO_MESSAGES", "Messages must have role user or assistant")
		return
	}

	reply := h.svc.Chat(r.Context(), authCtx.UserID, history)

	writeJSON(w, http.StatusOK, dto.ChatResponse{Reply: reply})
}
