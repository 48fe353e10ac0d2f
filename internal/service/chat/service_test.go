package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	model "github.com/hooma-ai/chatbot-backend/internal/model/chat"
	"github.com/hooma-ai/chatbot-backend/internal/sanitize"
	"github.com/hooma-ai/chatbot-backend/internal/service/ai"
	"github.com/hooma-ai/chatbot-backend/internal/service/chat"
	"github.com/hooma-ai/chatbot-backend/internal/service/ratelimit"
)

// fakeGenerator records every call and replays scripted results.
type fakeGenerator struct {
	mu        sync.Mutex
	histories [][]model.Message
	queries   []string
	replies   []string
	errs      []error
}

func (f *fakeGenerator) Generate(_ context.Context, history []model.Message, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := make([]model.Message, len(history))
	copy(copied, history)
	f.histories = append(f.histories, copied)
	f.queries = append(f.queries, query)

	call := len(f.queries) - 1
	if call < len(f.errs) && f.errs[call] != nil {
		return "", f.errs[call]
	}
	if call < len(f.replies) {
		return f.replies[call], nil
	}
	return "echo: " + query, nil
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func newTestService(gen chat.Generator) (*chat.Service, *chat.Store) {
	store := chat.NewStore(30*time.Minute, nil)
	limiter := ratelimit.New(100, 1000, nil)
	return chat.NewService(store, limiter, gen, 0, ""), store
}

func TestRespondRoundTripPreservesOrder(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"reply-a", "reply-b"}}
	svc, store := newTestService(gen)
	ctx := context.Background()

	first, err := svc.Respond(ctx, chat.Input{Message: "A", ClientAddr: "1.1.1.1"})
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if first.Response != "reply-a" {
		t.Fatalf("unexpected reply: %q", first.Response)
	}
	if first.SessionID == "" {
		t.Fatal("expected a session id")
	}

	second, err := svc.Respond(ctx, chat.Input{Message: "B", SessionID: first.SessionID, ClientAddr: "1.1.1.1"})
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatal("session id must be stable across turns")
	}

	// The second provider call sees A, reply-a in order, and B as the query.
	history := gen.histories[1]
	if len(history) != 2 {
		t.Fatalf("second call history has %d messages, want 2", len(history))
	}
	if history[0].Content != "A" || history[0].Role != model.RoleUser {
		t.Fatalf("history[0] = %+v, want user A", history[0])
	}
	if history[1].Content != "reply-a" || history[1].Role != model.RoleAssistant {
		t.Fatalf("history[1] = %+v, want assistant reply-a", history[1])
	}
	if gen.queries[1] != "B" {
		t.Fatalf("second query = %q, want B", gen.queries[1])
	}

	transcript, _ := store.Transcript(first.SessionID)
	if len(transcript) != 4 {
		t.Fatalf("transcript has %d messages, want 4", len(transcript))
	}
}

func TestRespondEmptyMessageCreatesNoSession(t *testing.T) {
	gen := &fakeGenerator{}
	svc, store := newTestService(gen)

	_, err := svc.Respond(context.Background(), chat.Input{Message: "   ", ClientAddr: "1.1.1.1"})
	if !errors.Is(err, sanitize.ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store holds %d sessions, want 0", store.Len())
	}
	if gen.calls() != 0 {
		t.Fatal("provider must not be called for invalid input")
	}
}

func TestRespondOversizedMessageRejected(t *testing.T) {
	svc, _ := newTestService(&fakeGenerator{})

	_, err := svc.Respond(context.Background(), chat.Input{
		Message:    strings.Repeat("x", sanitize.DefaultMaxLength+1),
		ClientAddr: "1.1.1.1",
	})
	if !errors.Is(err, sanitize.ErrMessageTooLong) {
		t.Fatalf("err = %v, want ErrMessageTooLong", err)
	}
}

func TestRespondRateLimited(t *testing.T) {
	store := chat.NewStore(30*time.Minute, nil)
	limiter := ratelimit.New(1, 100, nil)
	svc := chat.NewService(store, limiter, &fakeGenerator{}, 0, "")
	ctx := context.Background()

	if _, err := svc.Respond(ctx, chat.Input{Message: "hi", ClientAddr: "2.2.2.2"}); err != nil {
		t.Fatalf("first request err: %v", err)
	}

	_, err := svc.Respond(ctx, chat.Input{Message: "again", ClientAddr: "2.2.2.2"})
	var limited *chat.RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("err = %v, want RateLimitedError", err)
	}
	if limited.RetryAfter <= 0 {
		t.Fatal("retry-after must be positive")
	}

	// A different client is unaffected.
	if _, err := svc.Respond(ctx, chat.Input{Message: "hi", ClientAddr: "3.3.3.3"}); err != nil {
		t.Fatalf("unrelated client err: %v", err)
	}
}

func TestRespondRetriesTransientFailureOnce(t *testing.T) {
	gen := &fakeGenerator{
		errs:    []error{ai.ErrUnavailable, nil},
		replies: []string{"", "recovered"},
	}
	svc, _ := newTestService(gen)

	out, err := svc.Respond(context.Background(), chat.Input{Message: "hello", ClientAddr: "1.1.1.1"})
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if out.Response != "recovered" {
		t.Fatalf("reply = %q, want recovered", out.Response)
	}
	if gen.calls() != 2 {
		t.Fatalf("provider called %d times, want 2", gen.calls())
	}
}

func TestRespondFallbackAfterRetryExhausted(t *testing.T) {
	gen := &fakeGenerator{errs: []error{ai.ErrUnavailable, ai.ErrUnavailable}}
	svc, store := newTestService(gen)

	out, err := svc.Respond(context.Background(), chat.Input{Message: "hello", ClientAddr: "1.1.1.1"})
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if out.Response != chat.DefaultFallback {
		t.Fatalf("reply = %q, want fallback text", out.Response)
	}
	if gen.calls() != 2 {
		t.Fatalf("provider called %d times, want 2 (one retry)", gen.calls())
	}

	// The user turn stays; the fallback is never stored.
	transcript, _ := store.Transcript(out.SessionID)
	if len(transcript) != 1 {
		t.Fatalf("transcript has %d messages, want only the user turn", len(transcript))
	}
	if transcript[0].Role != model.RoleUser || transcript[0].Content != "hello" {
		t.Fatalf("transcript[0] = %+v, want the user message", transcript[0])
	}
}

func TestRespondRejectedNeverRetried(t *testing.T) {
	gen := &fakeGenerator{errs: []error{ai.ErrRejected}}
	svc, _ := newTestService(gen)

	out, err := svc.Respond(context.Background(), chat.Input{Message: "hello", ClientAddr: "1.1.1.1"})
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if out.Response != chat.DefaultFallback {
		t.Fatalf("reply = %q, want fallback text", out.Response)
	}
	if gen.calls() != 1 {
		t.Fatalf("provider called %d times, want 1 (no retry)", gen.calls())
	}
}

// cancelingGenerator simulates a client that disconnects while the provider
// call is still in flight: the request context is canceled before the reply
// comes back.
type cancelingGenerator struct {
	cancel context.CancelFunc
}

func (g *cancelingGenerator) Generate(context.Context, []model.Message, string) (string, error) {
	g.cancel()
	return "late reply", nil
}

func TestRespondDiscardsLateReplyAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, store := newTestService(&cancelingGenerator{cancel: cancel})

	_, err := svc.Respond(ctx, chat.Input{Message: "hello", ClientAddr: "1.1.1.1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// The late reply must not reach the transcript; only the user turn stays.
	sessions := store.Recent(1)
	if len(sessions) != 1 {
		t.Fatalf("store holds %d non-empty sessions, want 1", len(sessions))
	}
	transcript := sessions[0].Messages
	if len(transcript) != 1 {
		t.Fatalf("transcript has %d messages, want only the user turn", len(transcript))
	}
	if transcript[0].Role != model.RoleUser || transcript[0].Content != "hello" {
		t.Fatalf("transcript[0] = %+v, want the user message", transcript[0])
	}
}

func TestRespondNoProviderConfigured(t *testing.T) {
	svc, _ := newTestService(nil)

	out, err := svc.Respond(context.Background(), chat.Input{Message: "hello", ClientAddr: "1.1.1.1"})
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if out.Response != chat.DefaultFallback {
		t.Fatalf("reply = %q, want fallback text", out.Response)
	}
}
