// Package ai adapts interchangeable upstream chat-model providers behind a
// single generate operation. The concrete provider is chosen once at startup
// from configuration.
package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/hooma-ai/chatbot-backend/internal/config"
	"github.com/hooma-ai/chatbot-backend/internal/model/chat"
)

// Service runs generation requests against the configured upstream model.
type Service struct {
	chatModel    model.ChatModel
	cfg          config.AIConfig
	chain        compose.Runnable[map[string]any, *schema.Message]
	instructions string
	knowledge    string
}

// NewService builds the provider chain from configuration. instructions and
// knowledge are the static prompt texts loaded at startup; they are shared
// by every request without further copying.
func NewService(ctx context.Context, cfg config.AIConfig, instructions, knowledge string) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		cfg:          cfg,
		chain:        runnable,
		instructions: instructions,
		knowledge:    knowledge,
	}, nil
}

// Generate produces a reply for the new user turn given the prior transcript.
// The call carries a hard deadline from configuration; failures are mapped
// onto ErrUnavailable, ErrThrottled or ErrRejected.
func (s *Service) Generate(ctx context.Context, history []chat.Message, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	input := BuildPrompt(s.instructions, s.knowledge, history, s.cfg.HistoryLimit, query)

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", classifyUpstream(err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	log.Printf("[ai] generated response provider=%s length=%d", s.cfg.Provider, len(response.Content))
	return response.Content, nil
}

// Provider reports the active upstream identifier.
func (s *Service) Provider() string {
	return s.cfg.Provider
}
