// Package companion orchestrates one chat turn of the AI companion:
// best-effort interest extraction, prompt composition with the known
// interest profile, the inference call itself, and bookkeeping.
package companion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qianban/qianban/internal/history"
	"github.com/qianban/qianban/internal/interest"
	"github.com/qianban/qianban/internal/llm"
	"github.com/qianban/qianban/internal/storage"
)

const personaPrompt = `你是"牵伴"，一位陪伴老年人聊天的贴心伙伴。请用温暖、耐心、易懂的语言交流：
- 语气亲切自然，像晚辈陪长辈聊天。
- 回答简短清楚，避免网络用语和专业术语。
- 多关心对方的生活起居和身体状况。`

// historyWindow is how many recent messages are carried into each turn.
const historyWindow = 20

// InteractionRecorder persists completed chat turns.
// Implemented by storage.Store.
type InteractionRecorder interface {
	SaveInteraction(i storage.Interaction) error
}

// Reply is the outcome of one companion turn.
type Reply struct {
	Text               string              `json:"reply"`
	FollowUpQuestion   string              `json:"follow_up_question,omitempty"`
	ShowInterestDialog bool                `json:"show_interest_dialog"`
	Extracted          []interest.Interest `json:"extracted,omitempty"`
	DurationMs         int64               `json:"-"`
}

// Companion handles chat turns for one profile's interest book, routing
// inference calls to the primary or fallback backend per request.
type Companion struct {
	picker        *llm.Picker
	primaryModel  string
	fallbackModel string

	book       *interest.Book
	extractors map[llm.Provider]*interest.Extractor
	history    history.Store
	recorder   InteractionRecorder
}

// New wires a Companion. One interest extractor is built per backend so
// extraction follows the same provider choice as the reply itself.
// recorder may be nil to skip interaction logging.
func New(
	picker *llm.Picker,
	primaryModel, fallbackModel string,
	book *interest.Book,
	analyzeTimeout time.Duration,
	hist history.Store,
	recorder InteractionRecorder,
) *Companion {
	return &Companion{
		picker:        picker,
		primaryModel:  primaryModel,
		fallbackModel: fallbackModel,
		book:          book,
		extractors: map[llm.Provider]*interest.Extractor{
			llm.ProviderPrimary:  interest.NewExtractor(picker.Pick(llm.ProviderPrimary), primaryModel, analyzeTimeout, book),
			llm.ProviderFallback: interest.NewExtractor(picker.Pick(llm.ProviderFallback), fallbackModel, analyzeTimeout, book),
		},
		history:  hist,
		recorder: recorder,
	}
}

func (c *Companion) model(p llm.Provider) string {
	if p == llm.ProviderFallback {
		return c.fallbackModel
	}
	return c.primaryModel
}

// Respond runs one chat turn:
//  1. Extract interests from the message (best-effort — never blocks the turn)
//  2. Compose the system prompt with the known interest profile
//  3. Send persona + recent history + message to the selected backend
//  4. Record the turn and decide the next elicitation step
//
// Only a failure of the inference call itself is returned as an error;
// every auxiliary step degrades with a log line.
func (c *Companion) Respond(ctx context.Context, profileID, message string, provider llm.Provider) (Reply, error) {
	start := time.Now()

	// Unknown provider values route to the primary extractor, same as Picker.Pick.
	extractor, ok := c.extractors[provider]
	if !ok {
		extractor = c.extractors[llm.ProviderPrimary]
	}
	extracted := extractor.Analyze(ctx, message)

	system := personaPrompt
	if fragment := c.book.SummaryPrompt(); fragment != "" {
		system += "\n\n" + fragment
	}

	recent, err := c.history.Recent(ctx, profileID, historyWindow)
	if err != nil {
		slog.Warn("loading chat history failed, continuing without", "profile", profileID, "error", err)
		recent = nil
	}

	messages := make([]llm.Message, 0, len(recent)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	messages = append(messages, recent...)
	messages = append(messages, llm.Message{Role: "user", Content: message})

	text, err := c.picker.Pick(provider).Chat(ctx, c.model(provider), messages)
	if err != nil {
		return Reply{}, fmt.Errorf("chat backend: %w", err)
	}

	if err := c.history.Append(ctx, profileID, llm.Message{Role: "user", Content: message}); err != nil {
		slog.Warn("appending user message to history failed", "profile", profileID, "error", err)
	}
	if err := c.history.Append(ctx, profileID, llm.Message{Role: "assistant", Content: text}); err != nil {
		slog.Warn("appending reply to history failed", "profile", profileID, "error", err)
	}

	if c.recorder != nil {
		rec := storage.Interaction{
			ID:        uuid.New().String(),
			CreatedAt: time.Now().UTC(),
			ProfileID: profileID,
			Message:   message,
			Reply:     text,
			Provider:  string(provider),
		}
		if err := c.recorder.SaveInteraction(rec); err != nil {
			slog.Warn("recording interaction failed", "profile", profileID, "error", err)
		}
	}

	reply := Reply{
		Text:       text,
		Extracted:  extracted,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if c.book.ShouldShowDialog() {
		reply.ShowInterestDialog = true
	} else {
		reply.FollowUpQuestion = c.book.NextQuestion()
	}

	slog.Debug("companion turn complete",
		"profile", profileID,
		"provider", provider,
		"extracted", len(extracted),
		"duration_ms", reply.DurationMs,
	)
	return reply, nil
}
