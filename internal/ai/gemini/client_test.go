package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// scriptedChats replays canned replies in order and records every chat it opens.
type scriptedChats struct {
	mu     sync.Mutex
	script []scriptedReply
	calls  []openedChat
}

type scriptedReply struct {
	model string
	resp  *genai.GenerateContentResponse
	err   error
}

type openedChat struct {
	model  string
	config *genai.GenerateContentConfig
	sent   []string
}

type scriptedChat struct {
	owner *scriptedChats
	index int
	reply scriptedReply
}

func (c *scriptedChat) SendMessage(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	for _, part := range parts {
		c.owner.calls[c.index].sent = append(c.owner.calls[c.index].sent, part.Text)
	}
	return c.reply.resp, c.reply.err
}

func newFakeChatCreator() *scriptedChats {
	return &scriptedChats{}
}

func (s *scriptedChats) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, scriptedReply{model: model, resp: resp, err: err})
}

func (s *scriptedChats) Create(_ context.Context, model string, config *genai.GenerateContentConfig, _ []*genai.Content) (chatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	next := s.script[0]
	if next.model != model {
		return nil, fmt.Errorf("scripted reply is for model %q, got %q", next.model, model)
	}
	s.script = s.script[1:]
	s.calls = append(s.calls, openedChat{model: model, config: config})
	return &scriptedChat{owner: s, index: len(s.calls) - 1, reply: next}, nil
}

func textResponse(text string, tokens int32) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: tokens},
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	originalSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = originalSleep })
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	noSleep(t)

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", textResponse("retry ok", 42), nil)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	reply, err := g.GenerateContent(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if reply.Text != "retry ok" || reply.Tokens != 42 {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}

	for _, call := range chats.calls {
		if call.config == nil || call.config.SystemInstruction == nil {
			t.Fatalf("expected system instruction to be set")
		}
		if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
			t.Fatalf("unexpected system instruction: %q", got)
		}
		if call.config.ResponseMIMEType != "application/json" {
			t.Fatalf("expected json response type, got %q", call.config.ResponseMIMEType)
		}
		if len(call.sent) != 1 || call.sent[0] != "message" {
			t.Fatalf("unexpected chat message: %+v", call.sent)
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	noSleep(t)

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", nil, tempErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	_, err := g.GenerateContent(context.Background(), "sys", "msg")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped api error, got %v", err)
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	chats := newFakeChatCreator()
	quotaErr := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}
	chats.enqueue("gemini-pro", nil, quotaErr)

	g := &Generator{
		chats:      chats,
		model:      "gemini-pro",
		maxRetries: 3,
		logger:     zap.NewNop(),
	}

	_, err := g.GenerateContent(context.Background(), "sys", "msg")
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := &Generator{chats: chats, model: "gemini-pro", maxRetries: 3, logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "", "msg"); err == nil {
		t.Fatal("expected error")
	}
	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
	if chats.calls[0].config.SystemInstruction != nil {
		t.Fatalf("empty system instruction should be omitted")
	}
}

func TestGeneratorRejectsEmptyOutput(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", textResponse("   ", 3), nil)

	g := &Generator{chats: chats, model: "gemini-pro", maxRetries: 1, logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		attempt   int
		delay     time.Duration
		retryable bool
	}{
		{name: "server error backs off", err: genai.APIError{Code: 500}, attempt: 3, delay: 4 * time.Second, retryable: true},
		{name: "short quota delay", err: genai.APIError{Code: 429, Message: "Please retry in 2.5s."}, attempt: 1, delay: 2500 * time.Millisecond, retryable: true},
		{name: "plain error", err: errors.New("boom"), attempt: 1},
		{name: "not found", err: genai.APIError{Code: 404}, attempt: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			delay, retryable := retryDelay(tt.err, tt.attempt)
			if retryable != tt.retryable || delay != tt.delay {
				t.Fatalf("expected (%v,%v), got (%v,%v)", tt.delay, tt.retryable, delay, retryable)
			}
		})
	}
}
