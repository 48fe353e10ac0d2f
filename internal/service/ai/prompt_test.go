package ai

import (
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/hooma-ai/chatbot-backend/internal/model/chat"
)

func TestBuildPromptIncludesInstructionsAndKnowledgeVerbatim(t *testing.T) {
	input := BuildPrompt("You are a helpful assistant.", "Our product costs $10.", nil, 10, "hi")

	system, ok := input["system"].(string)
	if !ok {
		t.Fatal("system slot missing")
	}
	want := "You are a helpful assistant.\n\nKNOWLEDGE BASE:\nOur product costs $10."
	if system != want {
		t.Fatalf("system text = %q, want %q", system, want)
	}
	if input["query"] != "hi" {
		t.Fatalf("query = %v, want hi", input["query"])
	}
}

func TestBuildPromptEmptyKnowledgeOmitsSection(t *testing.T) {
	input := BuildPrompt("instructions only", "", nil, 10, "hi")
	if input["system"] != "instructions only" {
		t.Fatalf("system text = %q", input["system"])
	}
}

func TestHistoryMessagesDropsOldestFirst(t *testing.T) {
	var messages []chat.Message
	for i := 0; i < 15; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		messages = append(messages, chat.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}

	history := historyMessages(messages, 10)
	if len(history) != 10 {
		t.Fatalf("history has %d messages, want 10", len(history))
	}
	// Oldest five dropped; the rest keep their original order.
	if history[0].Content != "m5" {
		t.Fatalf("first retained message = %q, want m5", history[0].Content)
	}
	if history[9].Content != "m14" {
		t.Fatalf("last retained message = %q, want m14", history[9].Content)
	}
}

func TestHistoryMessagesRoleMapping(t *testing.T) {
	history := historyMessages([]chat.Message{
		{Role: chat.RoleUser, Content: "question"},
		{Role: chat.RoleAssistant, Content: "answer"},
		{Role: "system", Content: "ignored"},
	}, 10)

	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2 (unknown roles skipped)", len(history))
	}
	if history[0].Role != schema.User || history[1].Role != schema.Assistant {
		t.Fatalf("unexpected roles: %s, %s", history[0].Role, history[1].Role)
	}
}

func TestHistoryMessagesUnderLimitKeepsAll(t *testing.T) {
	history := historyMessages([]chat.Message{
		{Role: chat.RoleUser, Content: "only"},
	}, 10)
	if len(history) != 1 || history[0].Content != "only" {
		t.Fatalf("unexpected history: %+v", history)
	}
}
