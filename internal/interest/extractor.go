package interest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/qianban/qianban/internal/llm"
)

const defaultAnalyzeTimeout = 10 * time.Second

// Extractor derives structured interests from free-text chat messages by
// delegating understanding to an inference backend and merging every valid
// candidate into the Book.
type Extractor struct {
	backend llm.Chatter
	model   string
	timeout time.Duration
	book    *Book
}

// NewExtractor creates an Extractor targeting the given backend and model.
// If timeout <= 0 the default (10s) is used.
func NewExtractor(backend llm.Chatter, model string, timeout time.Duration, book *Book) *Extractor {
	if timeout <= 0 {
		timeout = defaultAnalyzeTimeout
	}
	return &Extractor{
		backend: backend,
		model:   model,
		timeout: timeout,
		book:    book,
	}
}

// Analyze extracts zero or more interests from one chat message and merges
// each into the Book, returning the merged items. Absence of interests is a
// normal outcome, not a failure; every failure mode (transport error,
// timeout, no recognizable array, malformed JSON) degrades to an empty
// result plus a log line. Extraction never throws past this boundary, and a
// failed call leaves the Book untouched.
func (e *Extractor) Analyze(ctx context.Context, message string) []Interest {
	if strings.TrimSpace(message) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.backend.Chat(ctx, e.model, []llm.Message{
		{Role: "user", Content: buildExtractionPrompt(message)},
	})
	if err != nil {
		slog.Warn("interest extraction chat failed", "error", err)
		return nil
	}

	arr, ok := extractJSONArray(raw)
	if !ok {
		slog.Debug("no interest array in extraction response", "response", raw)
		return nil
	}

	var candidates []Interest
	if err := json.Unmarshal([]byte(arr), &candidates); err != nil {
		slog.Warn("failed to parse extracted interest array", "error", err, "array", arr)
		return nil
	}

	var merged []Interest
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			slog.Warn("skipping invalid extracted interest", "category", c.Category, "name", c.Name, "level", c.Level, "error", err)
			continue
		}
		if err := e.book.Add(c); err != nil {
			slog.Warn("merging extracted interest failed", "category", c.Category, "name", c.Name, "error", err)
			continue
		}
		merged = append(merged, c)
	}
	return merged
}

// extractJSONArray scans raw model output for the first substring that is a
// balanced JSON array of objects (or an empty array), tolerating models that
// wrap the array in explanatory prose. A bracket-depth scanner is used
// rather than a regex; the scan is string- and escape-aware so brackets
// inside string values do not confuse the balance. Any ambiguity degrades to
// "not found".
func extractJSONArray(s string) (string, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '[' {
			continue
		}

		depth := 0
		inString := false
		escaped := false
		sawObject := false

		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				sawObject = true
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					inner := strings.TrimSpace(candidate[1 : len(candidate)-1])
					if sawObject || inner == "" {
						return candidate, true
					}
					// Balanced but not an array of objects (e.g. "[3]"
					// in prose) — keep scanning from the next bracket.
					i = len(s)
				}
			}
		}
	}
	return "", false
}
