package interest

import (
	"sync"
	"testing"

	"github.com/qianban/qianban/internal/storage"
)

// --- Mock blob store ---

type mockBlobStore struct {
	mu   sync.Mutex
	data map[string]string

	saveCalls int
	saveErr   error
}

func newMockBlobStore() *mockBlobStore {
	return &mockBlobStore{data: make(map[string]string)}
}

func (m *mockBlobStore) SaveProfileBlob(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = value
	return nil
}

func (m *mockBlobStore) LoadProfileBlob(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *mockBlobStore) DeleteProfileBlob(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Tests ---

func TestAdd_MergeIdempotence(t *testing.T) {
	b := NewBook(newMockBlobStore(), "default")

	it := Interest{Category: "阅读", Name: "小说", Level: LevelLike}
	if err := b.Add(it); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Add(it); err != nil {
		t.Fatalf("Add twice: %v", err)
	}

	got := b.Interests()
	if len(got) != 1 {
		t.Fatalf("got %d interests, want 1", len(got))
	}
	if got[0].Level != LevelLike {
		t.Errorf("level = %d, want %d", got[0].Level, LevelLike)
	}
}

func TestAdd_MaxLevelMonotonicity(t *testing.T) {
	b := NewBook(newMockBlobStore(), "default")

	levels := []int{2, 1, 3, 1, 2}
	for _, lv := range levels {
		if err := b.Add(Interest{Category: "旅游", Name: "登山", Level: lv}); err != nil {
			t.Fatalf("Add level %d: %v", lv, err)
		}
	}

	got := b.Interests()
	if len(got) != 1 {
		t.Fatalf("got %d interests, want 1", len(got))
	}
	if got[0].Level != 3 {
		t.Errorf("level = %d, want 3 (max seen)", got[0].Level)
	}
}

func TestAdd_DedupInvariant(t *testing.T) {
	b := NewBook(newMockBlobStore(), "default")

	items := []Interest{
		{Category: "阅读", Name: "小说", Level: 1},
		{Category: "阅读", Name: "诗词", Level: 2},
		{Category: "音乐", Name: "小说", Level: 1}, // same name, different category
		{Category: "阅读", Name: "小说", Level: 3},
	}
	for _, it := range items {
		if err := b.Add(it); err != nil {
			t.Fatalf("Add %+v: %v", it, err)
		}
	}

	got := b.Interests()
	seen := make(map[[2]string]bool)
	for _, it := range got {
		key := [2]string{it.Category, it.Name}
		if seen[key] {
			t.Errorf("duplicate key %v in interests", key)
		}
		seen[key] = true
	}
	if len(got) != 3 {
		t.Errorf("got %d interests, want 3", len(got))
	}
}

func TestAdd_PreservesInsertionOrder(t *testing.T) {
	b := NewBook(newMockBlobStore(), "default")

	b.Add(Interest{Category: "X", Name: "a", Level: 1})
	b.Add(Interest{Category: "Y", Name: "b", Level: 1})
	b.Add(Interest{Category: "X", Name: "a", Level: 3}) // merge, no reorder
	b.Add(Interest{Category: "Z", Name: "c", Level: 1})

	got := b.Interests()
	want := []string{"a", "b", "c"}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("interests[%d].Name = %q, want %q", i, got[i].Name, name)
		}
	}
}

func TestAdd_RejectsInvalid(t *testing.T) {
	b := NewBook(newMockBlobStore(), "default")

	invalid := []Interest{
		{Category: "", Name: "x", Level: 1},
		{Category: "x", Name: "", Level: 1},
		{Category: "x", Name: "y", Level: 0},
		{Category: "x", Name: "y", Level: 4},
	}
	for _, it := range invalid {
		if err := b.Add(it); err == nil {
			t.Errorf("Add(%+v) succeeded, want error", it)
		}
	}
	if len(b.Interests()) != 0 {
		t.Error("invalid items must not enter the book")
	}
}

func TestShouldShowDialog_Boundary(t *testing.T) {
	store := newMockBlobStore()
	b := NewBook(store, "default")

	// Four interests, four questions: below threshold on both counts.
	for i := 0; i < 4; i++ {
		b.Add(Interest{Category: "c", Name: string(rune('a' + i)), Level: 1})
		b.NextQuestion()
	}
	if b.ShouldShowDialog() {
		t.Error("dialog triggered at 4 interests / 4 questions")
	}

	// Fifth interest alone triggers.
	b.Add(Interest{Category: "c", Name: "e", Level: 1})
	if !b.ShouldShowDialog() {
		t.Error("dialog not triggered at 5 interests")
	}

	// Fifth question alone triggers.
	b2 := NewBook(newMockBlobStore(), "default")
	for i := 0; i < 5; i++ {
		b2.NextQuestion()
	}
	if !b2.ShouldShowDialog() {
		t.Error("dialog not triggered at 5 questions")
	}
}

func TestNextQuestion_Exhaustion(t *testing.T) {
	b := NewBook(newMockBlobStore(), "default")

	n := len(questionScript)
	for i := 0; i < n; i++ {
		q := b.NextQuestion()
		if q != questionScript[i] {
			t.Errorf("question %d = %q, want %q", i, q, questionScript[i])
		}
	}
	if b.AskedQuestions() != n {
		t.Errorf("asked = %d, want %d", b.AskedQuestions(), n)
	}

	// All calls past exhaustion return the identical fallback and the
	// cursor stops advancing.
	for i := 0; i < 3; i++ {
		if q := b.NextQuestion(); q != fallbackQuestion {
			t.Errorf("post-exhaustion question = %q, want fallback", q)
		}
	}
	if b.AskedQuestions() != n {
		t.Errorf("asked advanced past %d: %d", n, b.AskedQuestions())
	}
}

func TestClear_ResetsFully(t *testing.T) {
	store := newMockBlobStore()
	b := NewBook(store, "default")

	b.Add(Interest{Category: "阅读", Name: "小说", Level: 2})
	b.NextQuestion()
	b.Clear()

	if len(b.Interests()) != 0 {
		t.Error("interests not empty after Clear")
	}
	if b.ShouldShowDialog() {
		t.Error("dialog predicate true after Clear")
	}
	if q := b.NextQuestion(); q != questionScript[0] {
		t.Errorf("first question after Clear = %q, want script[0]", q)
	}

	// Idempotent, and the persisted copy is removed.
	b.Clear()
	b.Clear()
	if len(b.Interests()) != 0 {
		t.Error("Clear not idempotent")
	}
	store.mu.Lock()
	_, exists := store.data["interests:default"]
	store.mu.Unlock()
	if exists {
		t.Error("persisted copy still present after Clear")
	}
}

func TestSet_ReplacesWithoutMerge(t *testing.T) {
	b := NewBook(newMockBlobStore(), "default")

	b.Add(Interest{Category: "旧", Name: "x", Level: 3})
	b.NextQuestion()
	b.NextQuestion()

	restored := []Interest{
		{Category: "阅读", Name: "小说", Level: 1},
		{Category: "旅游", Name: "登山", Level: 2},
	}
	b.Set(restored)

	got := b.Interests()
	if len(got) != 2 || got[0].Name != "小说" || got[1].Name != "登山" {
		t.Errorf("unexpected interests after Set: %+v", got)
	}
	if b.AskedQuestions() != 0 {
		t.Errorf("asked = %d after Set, want 0 (clearing resets the cursor)", b.AskedQuestions())
	}
}

func TestRoundTripPersistence(t *testing.T) {
	store := newMockBlobStore()

	b := NewBook(store, "default")
	a := Interest{Category: "阅读", Name: "小说", Level: 2}
	c := Interest{Category: "旅游", Name: "登山", Level: 3}
	b.Set([]Interest{a, c})

	// Fresh hydration simulating a process restart.
	b2 := NewBook(store, "default")
	got := b2.Interests()
	if len(got) != 2 || got[0] != a || got[1] != c {
		t.Errorf("hydrated interests = %+v, want [%+v %+v]", got, a, c)
	}
	if b2.AskedQuestions() != 0 {
		t.Errorf("hydrated asked = %d, want 0", b2.AskedQuestions())
	}
}

func TestHydration_RestoresQuestionCursor(t *testing.T) {
	store := newMockBlobStore()

	b := NewBook(store, "default")
	b.NextQuestion()
	b.NextQuestion()
	b.NextQuestion()

	b2 := NewBook(store, "default")
	if b2.AskedQuestions() != 3 {
		t.Errorf("hydrated asked = %d, want 3", b2.AskedQuestions())
	}
	if q := b2.NextQuestion(); q != questionScript[3] {
		t.Errorf("next question after hydration = %q, want script[3]", q)
	}
}

func TestHydration_MalformedSnapshot(t *testing.T) {
	store := newMockBlobStore()
	store.data["interests:default"] = "{not json"

	b := NewBook(store, "default")
	if len(b.Interests()) != 0 {
		t.Error("expected empty book for malformed snapshot")
	}
}

func TestHydration_SkipsInvalidEntries(t *testing.T) {
	store := newMockBlobStore()
	store.data["interests:default"] = `{"interests":[{"category":"阅读","name":"小说","level":2},{"category":"","name":"bad","level":9}],"asked_questions":1}`

	b := NewBook(store, "default")
	got := b.Interests()
	if len(got) != 1 || got[0].Name != "小说" {
		t.Errorf("hydrated interests = %+v, want only the valid entry", got)
	}
}

func TestPersistFailure_Swallowed(t *testing.T) {
	store := newMockBlobStore()
	store.saveErr = errSave

	b := NewBook(store, "default")
	if err := b.Add(Interest{Category: "阅读", Name: "小说", Level: 1}); err != nil {
		t.Fatalf("Add returned error on persist failure: %v", err)
	}
	// In-memory state stays authoritative.
	if len(b.Interests()) != 1 {
		t.Error("in-memory state lost on persist failure")
	}
}

var errSave = &persistErr{}

type persistErr struct{}

func (*persistErr) Error() string { return "disk full" }

func TestProfilesAreIsolated(t *testing.T) {
	store := newMockBlobStore()

	b1 := NewBook(store, "alice")
	b2 := NewBook(store, "bob")

	b1.Add(Interest{Category: "阅读", Name: "小说", Level: 1})
	if len(b2.Interests()) != 0 {
		t.Error("interest bled across profiles")
	}

	b2Hydrated := NewBook(store, "bob")
	if len(b2Hydrated.Interests()) != 0 {
		t.Error("hydrated wrong profile's snapshot")
	}
}
