package companion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/qianban/qianban/internal/history"
	"github.com/qianban/qianban/internal/interest"
	"github.com/qianban/qianban/internal/llm"
	"github.com/qianban/qianban/internal/storage"
)

type mockChatter struct {
	response  string
	err       error
	calls     int
	lastMsgs  []llm.Message
	lastModel string
}

func (m *mockChatter) Chat(_ context.Context, model string, messages []llm.Message) (string, error) {
	m.calls++
	m.lastModel = model
	m.lastMsgs = messages
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockChatter) IsRunning(context.Context) bool { return m.err == nil }

type mockBlobStore struct {
	blobs map[string]string
}

func newMockBlobStore() *mockBlobStore {
	return &mockBlobStore{blobs: make(map[string]string)}
}

func (m *mockBlobStore) SaveProfileBlob(key, value string) error {
	m.blobs[key] = value
	return nil
}

func (m *mockBlobStore) LoadProfileBlob(key string) (string, error) {
	v, ok := m.blobs[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *mockBlobStore) DeleteProfileBlob(key string) error {
	delete(m.blobs, key)
	return nil
}

type mockRecorder struct {
	saved []storage.Interaction
	err   error
}

func (m *mockRecorder) SaveInteraction(i storage.Interaction) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, i)
	return nil
}

func newTestCompanion(t *testing.T, primary, fallback *mockChatter, rec InteractionRecorder) (*Companion, *interest.Book) {
	t.Helper()
	book := interest.NewBook(newMockBlobStore(), "elder-1")
	c := New(
		llm.NewPicker(primary, fallback),
		"primary-model", "fallback-model",
		book, 0, history.NewMemory(), rec,
	)
	return c, book
}

func TestRespond_HappyPath(t *testing.T) {
	// The same backend serves extraction and the reply, so return an
	// extraction payload first, then let the reply be whatever comes back.
	primary := &mockChatter{response: `[{"category":"运动","name":"太极","level":2}]`}
	rec := &mockRecorder{}
	c, book := newTestCompanion(t, primary, &mockChatter{}, rec)

	reply, err := c.Respond(context.Background(), "elder-1", "我每天早上都打太极", llm.ProviderPrimary)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text == "" {
		t.Error("expected a non-empty reply text")
	}
	if len(reply.Extracted) != 1 || reply.Extracted[0].Name != "太极" {
		t.Errorf("extracted = %+v, want one 太极 entry", reply.Extracted)
	}
	if got := book.Interests(); len(got) != 1 {
		t.Errorf("book has %d interests, want 1", len(got))
	}
	if primary.lastModel != "primary-model" {
		t.Errorf("model = %q, want primary-model", primary.lastModel)
	}
	if len(rec.saved) != 1 {
		t.Fatalf("recorded %d interactions, want 1", len(rec.saved))
	}
	if rec.saved[0].Provider != "primary" || rec.saved[0].ProfileID != "elder-1" {
		t.Errorf("interaction = %+v", rec.saved[0])
	}
}

func TestRespond_FallbackProviderRoutes(t *testing.T) {
	primary := &mockChatter{response: "primary says hi"}
	fallback := &mockChatter{response: "fallback says hi"}
	c, _ := newTestCompanion(t, primary, fallback, nil)

	reply, err := c.Respond(context.Background(), "elder-1", "你好", llm.ProviderFallback)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text != "fallback says hi" {
		t.Errorf("reply = %q, want fallback's answer", reply.Text)
	}
	if fallback.lastModel != "fallback-model" {
		t.Errorf("model = %q, want fallback-model", fallback.lastModel)
	}
	if primary.calls != 0 {
		t.Errorf("primary backend called %d times, want 0", primary.calls)
	}
}

func TestRespond_BackendFailureSurfaces(t *testing.T) {
	primary := &mockChatter{err: errors.New("boom")}
	c, _ := newTestCompanion(t, primary, &mockChatter{}, nil)

	_, err := c.Respond(context.Background(), "elder-1", "你好", llm.ProviderPrimary)
	if err == nil {
		t.Fatal("expected the inference error to surface")
	}
}

func TestRespond_SystemPromptCarriesInterests(t *testing.T) {
	primary := &mockChatter{response: "好的"}
	c, book := newTestCompanion(t, primary, &mockChatter{}, nil)
	book.Add(interest.Interest{Category: "音乐", Name: "越剧", Level: 3})

	if _, err := c.Respond(context.Background(), "elder-1", "今天天气不错", llm.ProviderPrimary); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(primary.lastMsgs) == 0 || primary.lastMsgs[0].Role != "system" {
		t.Fatal("expected the first message to be the system prompt")
	}
	if !strings.Contains(primary.lastMsgs[0].Content, "音乐/越剧") {
		t.Errorf("system prompt missing interest line:\n%s", primary.lastMsgs[0].Content)
	}
}

func TestRespond_HistoryFlowsIntoNextTurn(t *testing.T) {
	primary := &mockChatter{response: "回答"}
	c, _ := newTestCompanion(t, primary, &mockChatter{}, nil)
	ctx := context.Background()

	if _, err := c.Respond(ctx, "elder-1", "第一句", llm.ProviderPrimary); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := c.Respond(ctx, "elder-1", "第二句", llm.ProviderPrimary); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	var sawFirst bool
	for _, m := range primary.lastMsgs {
		if m.Content == "第一句" {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Error("second turn's messages do not include the first turn")
	}
	if last := primary.lastMsgs[len(primary.lastMsgs)-1]; last.Role != "user" || last.Content != "第二句" {
		t.Errorf("last message = %+v, want the new user message", last)
	}
}

func TestRespond_FollowUpQuestionAdvances(t *testing.T) {
	primary := &mockChatter{response: "好"}
	c, _ := newTestCompanion(t, primary, &mockChatter{}, nil)
	ctx := context.Background()

	r1, err := c.Respond(ctx, "elder-1", "聊聊", llm.ProviderPrimary)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	r2, err := c.Respond(ctx, "elder-1", "再聊聊", llm.ProviderPrimary)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if r1.FollowUpQuestion == "" || r2.FollowUpQuestion == "" {
		t.Fatal("expected follow-up questions while the profile is sparse")
	}
	if r1.FollowUpQuestion == r2.FollowUpQuestion {
		t.Error("consecutive turns repeated the same scripted question")
	}
	if r1.ShowInterestDialog || r2.ShowInterestDialog {
		t.Error("dialog flag set before the threshold")
	}
}

func TestRespond_DialogReplacesFollowUp(t *testing.T) {
	primary := &mockChatter{response: "好"}
	c, book := newTestCompanion(t, primary, &mockChatter{}, nil)
	for _, name := range []string{"太极", "象棋", "书法", "越剧", "钓鱼"} {
		book.Add(interest.Interest{Category: "爱好", Name: name, Level: 1})
	}

	reply, err := c.Respond(context.Background(), "elder-1", "你好", llm.ProviderPrimary)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !reply.ShowInterestDialog {
		t.Error("expected the interest dialog at five known interests")
	}
	if reply.FollowUpQuestion != "" {
		t.Errorf("follow-up = %q, want none once the dialog shows", reply.FollowUpQuestion)
	}
}

func TestRespond_UnknownProviderUsesPrimary(t *testing.T) {
	primary := &mockChatter{response: `[{"category":"运动","name":"太极","level":2}]`}
	fallback := &mockChatter{}
	c, _ := newTestCompanion(t, primary, fallback, nil)

	reply, err := c.Respond(context.Background(), "elder-1", "我爱打太极", llm.Provider("mystery"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(reply.Extracted) != 1 || reply.Extracted[0].Name != "太极" {
		t.Errorf("extracted = %+v, want one 太极 entry", reply.Extracted)
	}
	if primary.lastModel != "primary-model" {
		t.Errorf("model = %q, want primary-model", primary.lastModel)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback backend called %d times, want 0", fallback.calls)
	}
}

func TestRespond_RecorderFailureSwallowed(t *testing.T) {
	primary := &mockChatter{response: "好"}
	rec := &mockRecorder{err: errors.New("disk full")}
	c, _ := newTestCompanion(t, primary, &mockChatter{}, rec)

	reply, err := c.Respond(context.Background(), "elder-1", "你好", llm.ProviderPrimary)
	if err != nil {
		t.Fatalf("Respond should not fail on recorder errors: %v", err)
	}
	if reply.Text != "好" {
		t.Errorf("reply = %q", reply.Text)
	}
}
