package interest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/qianban/qianban/internal/storage"
)

// dialogThreshold is the point at which the chat UI should stop implicit
// collection and surface an explicit interest dialog: five collected
// interests, or five scripted questions dispensed, whichever comes first.
const dialogThreshold = 5

// BlobStore defines the persistence operations the Book needs.
// Implemented by storage.Store.
type BlobStore interface {
	SaveProfileBlob(key, value string) error
	LoadProfileBlob(key string) (string, error)
	DeleteProfileBlob(key string) error
}

// Book holds one profile's accumulated interests and the scripted-question
// cursor. The two are guarded as a single unit by one mutex: Add's
// find-then-mutate-or-append sequence and the merge-then-persist path must
// not interleave.
//
// Every mutation persists the full snapshot synchronously. Persistence
// failures are logged and swallowed; the in-memory state stays authoritative
// for the remainder of the process lifetime.
type Book struct {
	store BlobStore
	key   string

	mu        sync.Mutex
	interests []Interest
	asked     int
}

// snapshot is the serialized form stored under the profile blob key.
type snapshot struct {
	Interests      []Interest `json:"interests"`
	AskedQuestions int        `json:"asked_questions"`
}

// NewBook creates a Book for the given profile, hydrating prior state from
// the store if a snapshot exists. A missing or unreadable snapshot yields an
// empty book; hydration never fails.
func NewBook(store BlobStore, profileID string) *Book {
	b := &Book{
		store: store,
		key:   "interests:" + profileID,
	}

	raw, err := store.LoadProfileBlob(b.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("loading interest snapshot failed, starting empty", "key", b.key, "error", err)
		}
		return b
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		slog.Warn("malformed interest snapshot, starting empty", "key", b.key, "error", err)
		return b
	}

	// Drop malformed entries individually rather than rejecting the snapshot.
	for _, it := range snap.Interests {
		if err := it.Validate(); err != nil {
			slog.Warn("skipping invalid stored interest", "category", it.Category, "name", it.Name, "error", err)
			continue
		}
		b.interests = append(b.interests, it)
	}
	if snap.AskedQuestions >= 0 {
		b.asked = min(snap.AskedQuestions, len(questionScript))
	}
	return b
}

// Interests returns the current interests in first-seen order.
func (b *Book) Interests() []Interest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Interest, len(b.interests))
	copy(out, b.interests)
	return out
}

// Add merges one interest: an existing (category, name) entry keeps the
// maximum of its current and the incoming level, a new key is appended.
// Invalid items are rejected before any state changes.
func (b *Book) Add(item Interest) error {
	if err := item.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.interests {
		if b.interests[i].Category == item.Category && b.interests[i].Name == item.Name {
			if item.Level > b.interests[i].Level {
				b.interests[i].Level = item.Level
			}
			b.persistLocked()
			return nil
		}
	}

	b.interests = append(b.interests, item)
	b.persistLocked()
	return nil
}

// Set replaces the whole interest set: existing state is cleared first
// (interests emptied, question cursor zeroed, persisted copy removed), then
// the given items are copied in verbatim — no merge or dedup is applied, the
// caller supplies an already-valid set. Used for bulk restore.
func (b *Book) Set(items []Interest) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.interests = nil
	b.asked = 0
	if err := b.store.DeleteProfileBlob(b.key); err != nil {
		slog.Warn("deleting interest snapshot failed", "key", b.key, "error", err)
	}

	b.interests = make([]Interest, len(items))
	copy(b.interests, items)
	b.persistLocked()
}

// Clear empties the interests, resets the question cursor, and removes the
// persisted copy. Idempotent.
func (b *Book) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.interests = nil
	b.asked = 0
	if err := b.store.DeleteProfileBlob(b.key); err != nil {
		slog.Warn("deleting interest snapshot failed", "key", b.key, "error", err)
	}
}

// ShouldShowDialog reports whether the chat UI should surface an explicit
// "tell me about your interests" dialog instead of continuing implicit
// collection. Pure predicate, no mutation.
func (b *Book) ShouldShowDialog() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.interests) >= dialogThreshold || b.asked >= dialogThreshold
}

// AskedQuestions returns the scripted-question cursor position.
func (b *Book) AskedQuestions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.asked
}

// NextQuestion dispenses the next scripted question and advances the cursor.
// Past the end of the script the cursor saturates and the fixed fallback
// prompt is returned on every call.
func (b *Book) NextQuestion() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.asked >= len(questionScript) {
		return fallbackQuestion
	}

	q := questionScript[b.asked]
	b.asked++
	b.persistLocked()
	return q
}

// persistLocked writes the full snapshot to the store. Callers hold b.mu.
// Failures are logged and swallowed — durability loss must never interrupt
// the surrounding chat flow.
func (b *Book) persistLocked() {
	data, err := json.Marshal(snapshot{
		Interests:      b.interests,
		AskedQuestions: b.asked,
	})
	if err != nil {
		slog.Warn("marshalling interest snapshot failed", "key", b.key, "error", err)
		return
	}
	if err := b.store.SaveProfileBlob(b.key, string(data)); err != nil {
		slog.Warn("persisting interest snapshot failed", "key", b.key, "error", err)
	}
}
