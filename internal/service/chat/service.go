// Package chat holds the session registry and the orchestrator that drives a
// single widget request through sanitization, admission, context assembly
// and generation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hooma-ai/chatbot-backend/internal/model/chat"
	"github.com/hooma-ai/chatbot-backend/internal/sanitize"
	"github.com/hooma-ai/chatbot-backend/internal/service/ai"
	"github.com/hooma-ai/chatbot-backend/internal/service/ratelimit"
)

// DefaultFallback is returned to the client when the provider stays down
// after the retry. It is never written to the transcript.
const DefaultFallback = "I apologize, but I'm experiencing technical difficulties. " +
	"Please try again in a moment, or feel free to contact our team directly for immediate assistance."

const (
	retryBackoff    = 500 * time.Millisecond
	throttleBackoff = time.Second
)

// Generator is the single capability the orchestrator needs from an
// upstream provider.
type Generator interface {
	Generate(ctx context.Context, history []chat.Message, query string) (string, error)
}

// RateLimitedError rejects a request at admission. RetryAfter is the wait
// until the tripped window resets.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter)
}

// Input is one inbound chat request after transport decoding.
type Input struct {
	Message    string
	SessionID  string
	ClientAddr string
	UserInfo   map[string]any
}

// Output is the reply handed back to the widget.
type Output struct {
	Response  string
	SessionID string
	Timestamp time.Time
}

// Service composes the request pipeline. gen may be nil when no provider is
// configured; every request then receives the fallback text.
type Service struct {
	store         *Store
	limiter       *ratelimit.Limiter
	gen           Generator
	maxMessageLen int
	fallback      string
}

// NewService wires the orchestrator. A fallback of "" selects
// DefaultFallback.
func NewService(store *Store, limiter *ratelimit.Limiter, gen Generator, maxMessageLen int, fallback string) *Service {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Service{
		store:         store,
		limiter:       limiter,
		gen:           gen,
		maxMessageLen: maxMessageLen,
		fallback:      fallback,
	}
}

// Respond runs one request end to end. Validation and rate-limit rejections
// happen before any session state is touched. On provider failure the user's
// message stays in the transcript and the fallback text is returned without
// being stored.
func (s *Service) Respond(ctx context.Context, in Input) (Output, error) {
	text, err := sanitize.Clean(in.Message, s.maxMessageLen)
	if err != nil {
		return Output{}, err
	}

	if decision := s.limiter.Allow(in.ClientAddr); !decision.OK {
		return Output{}, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	sessionID, _ := s.store.Begin(in.SessionID, in.UserInfo)

	userMsg := chat.Message{Role: chat.RoleUser, Content: text}
	history, ok := s.store.Append(sessionID, userMsg)
	if !ok {
		// The session lost a race with the sweeper; start a fresh one.
		sessionID, _ = s.store.Begin("", in.UserInfo)
		history, _ = s.store.Append(sessionID, userMsg)
	}
	prior := history[:len(history)-1]

	reply, err := s.generate(ctx, prior, text)
	if err != nil {
		log.Printf("[chat] generation failed session=%s: %v", sessionID, err)
		return Output{
			Response:  s.fallback,
			SessionID: sessionID,
			Timestamp: time.Now().UTC(),
		}, nil
	}

	if ctx.Err() != nil {
		// Client is gone; discard the late reply instead of appending it.
		return Output{}, ctx.Err()
	}

	transcript, ok := s.store.Append(sessionID, chat.Message{Role: chat.RoleAssistant, Content: reply})
	ts := time.Now().UTC()
	if ok {
		ts = transcript[len(transcript)-1].Timestamp
	}

	return Output{Response: reply, SessionID: sessionID, Timestamp: ts}, nil
}

// generate calls the provider, retrying transient failures exactly once.
// The provider call runs without holding any store or limiter lock.
func (s *Service) generate(ctx context.Context, history []chat.Message, query string) (string, error) {
	if s.gen == nil {
		return "", fmt.Errorf("%w: no provider configured", ai.ErrUnavailable)
	}

	reply, err := s.gen.Generate(ctx, history, query)
	if err == nil {
		return reply, nil
	}

	var backoff time.Duration
	switch {
	case errors.Is(err, ai.ErrRejected):
		// Configuration fault; retrying cannot help.
		log.Printf("[chat] provider rejected request, check credentials: %v", err)
		return "", err
	case errors.Is(err, ai.ErrThrottled):
		backoff = throttleBackoff
	default:
		backoff = retryBackoff
	}

	if err := wait(ctx, backoff); err != nil {
		return "", err
	}
	return s.gen.Generate(ctx, history, query)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
