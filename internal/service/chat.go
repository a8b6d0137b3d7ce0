package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ezcommon/apply-portal/internal/llm"
)

const (
	// chatHistoryLimit caps how many prior turns go back to the model.
	chatHistoryLimit = 10
	chatTemperature  = 0.7
	chatMaxTokens    = 500
)

// chatSystemPrompt frames the assistant for the application platform.
const chatSystemPrompt = `You are a helpful assistant for a college application platform. You help students with:
- Questions about college applications and admissions
- Understanding application requirements and deadlines
- Guidance on uploading and organizing their documents
- Using the platform features (document parsing, form filling, exports)

Be concise, friendly and accurate. If a question is outside college applications or the platform, politely steer the conversation back.`

// chatApology is returned when the model provider is unavailable. The
// chat surface degrades gracefully instead of erroring.
const chatApology = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// ChatService runs the assistant conversation.
type ChatService struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(provider llm.Provider, logger *slog.Logger) *ChatService {
	return &ChatService{provider: provider, logger: logger}
}

// Chat answers the latest user message given the prior conversation.
// Provider failures come back as an apology, not an error.
func (s *ChatService) Chat(ctx context.Context, userID string, history []llm.Message) string {
	if len(history) > chatHistoryLimit {
		history = history[len(history)-chatHistoryLimit:]
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: chatSystemPrompt})
	messages = append(messages, history...)

	reply, err := s.provider.ChatCompletion(ctx, messages, llm.ChatOptions{
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		s.logger.Warn("chat completion failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return chatApology
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return chatApology
	}
	return reply
}
