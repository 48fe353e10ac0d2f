package ai

import (
	"github.com/cloudwego/eino/schema"

	"github.com/hooma-ai/chatbot-backend/internal/model/chat"
)

// BuildPrompt assembles the chain input for one generation: the static
// instructions and knowledge corpus go into the system slot verbatim, the
// bounded transcript into the history slot, and the new user turn into the
// query slot. The session itself is never touched here.
func BuildPrompt(instructions, knowledge string, history []chat.Message, historyLimit int, query string) map[string]any {
	return map[string]any{
		"system":  systemText(instructions, knowledge),
		"history": historyMessages(history, historyLimit),
		"query":   query,
	}
}

// systemText composes the fixed prompt preamble. Instructions and knowledge
// are included as-is and are never truncated.
func systemText(instructions, knowledge string) string {
	if knowledge == "" {
		return instructions
	}
	return instructions + "\n\nKNOWLEDGE BASE:\n" + knowledge
}

// historyMessages converts the last limit transcript messages, oldest first.
// Truncation always drops the oldest messages.
func historyMessages(messages []chat.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if limit > 0 && len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
