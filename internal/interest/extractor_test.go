package interest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/qianban/qianban/internal/llm"
)

// mockChatter implements llm.Chatter for testing.
type mockChatter struct {
	response string
	err      error
	delay    time.Duration

	lastPrompt string
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []llm.Message) (string, error) {
	if len(messages) > 0 {
		m.lastPrompt = messages[len(messages)-1].Content
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func (m *mockChatter) IsRunning(ctx context.Context) bool { return true }

func newTestExtractor(mock *mockChatter) (*Extractor, *Book) {
	book := NewBook(newMockBlobStore(), "default")
	return NewExtractor(mock, "qwen-plus", 0, book), book
}

func TestAnalyze_ProseTolerance(t *testing.T) {
	mock := &mockChatter{
		response: `Sure! Here are the interests: [{"category":"旅游","name":"登山","level":2}] Hope this helps!`,
	}
	e, book := newTestExtractor(mock)

	got := e.Analyze(context.Background(), "我周末喜欢去爬山")
	if len(got) != 1 {
		t.Fatalf("got %d interests, want 1", len(got))
	}
	want := Interest{Category: "旅游", Name: "登山", Level: 2}
	if got[0] != want {
		t.Errorf("extracted %+v, want %+v", got[0], want)
	}
	if stored := book.Interests(); len(stored) != 1 || stored[0] != want {
		t.Errorf("book state %+v, want [%+v]", stored, want)
	}
}

func TestAnalyze_EmptyArray(t *testing.T) {
	mock := &mockChatter{response: `[]`}
	e, book := newTestExtractor(mock)

	got := e.Analyze(context.Background(), "今天天气不错")
	if len(got) != 0 {
		t.Errorf("got %d interests, want 0", len(got))
	}
	if len(book.Interests()) != 0 {
		t.Error("book must stay unchanged on empty extraction")
	}
}

func TestAnalyze_GarbageResponse(t *testing.T) {
	mock := &mockChatter{response: "抱歉，我不太明白您的意思。"}
	e, book := newTestExtractor(mock)

	if got := e.Analyze(context.Background(), "嗯"); len(got) != 0 {
		t.Errorf("got %d interests for garbage response, want 0", len(got))
	}
	if len(book.Interests()) != 0 {
		t.Error("book changed on garbage response")
	}
}

func TestAnalyze_MalformedArray(t *testing.T) {
	mock := &mockChatter{response: `[{"category": 旅游}]`}
	e, book := newTestExtractor(mock)

	if got := e.Analyze(context.Background(), "我爱爬山"); len(got) != 0 {
		t.Errorf("got %d interests for malformed JSON, want 0", len(got))
	}
	if len(book.Interests()) != 0 {
		t.Error("book changed on malformed JSON")
	}
}

func TestAnalyze_SkipsInvalidItemsIndividually(t *testing.T) {
	mock := &mockChatter{
		response: `[{"category":"阅读","name":"小说","level":2},{"category":"","name":"??","level":1},{"category":"音乐","name":"戏曲","level":9},{"category":"美食","name":"做饭","level":3}]`,
	}
	e, book := newTestExtractor(mock)

	got := e.Analyze(context.Background(), "我喜欢看小说也爱做饭")
	if len(got) != 2 {
		t.Fatalf("got %d interests, want 2 (invalid items skipped, batch not aborted)", len(got))
	}
	if got[0].Name != "小说" || got[1].Name != "做饭" {
		t.Errorf("unexpected extracted items: %+v", got)
	}
	if len(book.Interests()) != 2 {
		t.Errorf("book has %d interests, want 2", len(book.Interests()))
	}
}

func TestAnalyze_TransportFailure(t *testing.T) {
	mock := &mockChatter{err: fmt.Errorf("connection refused")}
	e, book := newTestExtractor(mock)

	if got := e.Analyze(context.Background(), "我喜欢爬山"); len(got) != 0 {
		t.Errorf("got %d interests on transport failure, want 0", len(got))
	}
	if len(book.Interests()) != 0 {
		t.Error("book changed on transport failure")
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	mock := &mockChatter{
		response: `[{"category":"旅游","name":"登山","level":2}]`,
		delay:    time.Second,
	}
	book := NewBook(newMockBlobStore(), "default")
	e := NewExtractor(mock, "qwen-plus", 50*time.Millisecond, book)

	start := time.Now()
	got := e.Analyze(context.Background(), "我喜欢爬山")
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Analyze did not honor the timeout")
	}
	if len(got) != 0 {
		t.Errorf("got %d interests on timeout, want 0", len(got))
	}
	if len(book.Interests()) != 0 {
		t.Error("book left partially mutated on timeout")
	}
}

func TestAnalyze_EmptyMessage(t *testing.T) {
	mock := &mockChatter{response: `[]`}
	e, _ := newTestExtractor(mock)

	if got := e.Analyze(context.Background(), "   "); got != nil {
		t.Errorf("got %v for blank message, want nil", got)
	}
	if mock.lastPrompt != "" {
		t.Error("backend called for blank message")
	}
}

func TestAnalyze_MergesIntoExisting(t *testing.T) {
	mock := &mockChatter{response: `[{"category":"旅游","name":"登山","level":1}]`}
	e, book := newTestExtractor(mock)

	book.Add(Interest{Category: "旅游", Name: "登山", Level: 3})
	e.Analyze(context.Background(), "偶尔也爬爬山")

	got := book.Interests()
	if len(got) != 1 {
		t.Fatalf("got %d interests, want 1", len(got))
	}
	if got[0].Level != 3 {
		t.Errorf("level = %d, want 3 (levels never decrease)", got[0].Level)
	}
}

func TestAnalyze_PromptEmbedsMessage(t *testing.T) {
	mock := &mockChatter{response: `[]`}
	e, _ := newTestExtractor(mock)

	e.Analyze(context.Background(), "我特别喜欢养兰花")
	if mock.lastPrompt == "" || !containsStr(mock.lastPrompt, "我特别喜欢养兰花") {
		t.Errorf("extraction prompt missing the raw message: %q", mock.lastPrompt)
	}
}

func containsStr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare array", `[{"a":1}]`, `[{"a":1}]`, true},
		{"prose wrapped", `Here: [{"a":1}] done`, `[{"a":1}]`, true},
		{"empty array", `[]`, `[]`, true},
		{"no array", `nothing here`, "", false},
		{"unbalanced", `[{"a":1}`, "", false},
		{"bracket in string", `[{"a":"x]y"}]`, `[{"a":"x]y"}]`, true},
		{"escaped quote in string", `[{"a":"x\"]"}]`, `[{"a":"x\"]"}]`, true},
		{"nested array", `[{"a":[1,2]}]`, `[{"a":[1,2]}]`, true},
		{"prose bracket before array", `list[3] then [{"a":1}]`, `[{"a":1}]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONArray(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("extractJSONArray(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}
