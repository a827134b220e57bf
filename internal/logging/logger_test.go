package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

// syncBuffer guards a bytes.Buffer so concurrent log writes don't race.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func initForTest(t *testing.T, opts Options) *syncBuffer {
	t.Helper()
	out := &syncBuffer{}
	opts.Output = out
	if err := Initialize(opts); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(Reset)
	return out
}

// TestAllCategoriesLog tests that every category writes through the shared core
func TestAllCategoriesLog(t *testing.T) {
	out := initForTest(t, Options{Level: "debug"})

	categories := []Category{
		CategoryBoot,
		CategoryThinking,
		CategoryTransport,
		CategoryJournal,
		CategoryConfig,
		CategoryMetrics,
		CategoryTools,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		Get(cat).Info("Test info message for %s", cat)
	}

	Boot("Convenience boot log")
	Transport("Convenience transport log")

	logged := out.String()
	for _, cat := range categories {
		if !strings.Contains(logged, "Test info message for "+string(cat)) {
			t.Errorf("missing log line for category %s", cat)
		}
	}
	if !strings.Contains(logged, "Convenience boot log") {
		t.Error("missing boot convenience log")
	}
	if !strings.Contains(logged, "Convenience transport log") {
		t.Error("missing transport convenience log")
	}
}

func TestDisabledCategoryIsNoop(t *testing.T) {
	out := initForTest(t, Options{
		Level:      "debug",
		Categories: map[string]bool{"thinking": false},
	})

	if IsCategoryEnabled(CategoryThinking) {
		t.Fatal("thinking category should be disabled")
	}
	if !IsCategoryEnabled(CategoryBoot) {
		t.Fatal("unlisted categories should default to enabled")
	}

	Get(CategoryThinking).Error("This should NOT be logged")
	Boot("boot still logs")

	logged := out.String()
	if strings.Contains(logged, "should NOT be logged") {
		t.Errorf("disabled category wrote output: %s", logged)
	}
	if !strings.Contains(logged, "boot still logs") {
		t.Errorf("expected boot output, got: %s", logged)
	}
}

func TestUninitializedLoggerIsNoop(t *testing.T) {
	Reset()
	// Must not panic.
	Get(CategoryBoot).Info("nobody is listening")
	Sync()
}

func TestLevelFiltering(t *testing.T) {
	out := initForTest(t, Options{Level: "warn"})

	l := Get(CategoryTransport)
	l.Debug("debug hidden")
	l.Info("info hidden")
	l.Warn("warn shown")

	logged := out.String()
	if strings.Contains(logged, "hidden") {
		t.Errorf("messages below warn leaked: %s", logged)
	}
	if !strings.Contains(logged, "warn shown") {
		t.Errorf("expected warn message, got: %s", logged)
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	l.Debug("debug after reload")
	if !strings.Contains(out.String(), "debug after reload") {
		t.Error("SetLevel did not take effect on existing logger")
	}
	if Level() != "debug" {
		t.Errorf("Level() = %s, want debug", Level())
	}
}

func TestJSONFormat(t *testing.T) {
	out := initForTest(t, Options{Level: "info", Format: "json"})

	Get(CategoryJournal).With("session", "abc").Info("recorded %d steps", 3)

	line := strings.TrimSpace(out.String())
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", line, err)
	}
	if entry["msg"] != "recorded 3 steps" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["logger"] != "journal" {
		t.Errorf("logger = %v, want journal", entry["logger"])
	}
	if entry["session"] != "abc" {
		t.Errorf("session = %v, want abc", entry["session"])
	}
}

func TestInitializeRejectsBadOptions(t *testing.T) {
	defer Reset()
	if err := Initialize(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Initialize(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestConcurrentGet(t *testing.T) {
	initForTest(t, Options{Level: "info"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Get(CategoryThinking).Info("concurrent")
		}()
	}
	wg.Wait()
}
