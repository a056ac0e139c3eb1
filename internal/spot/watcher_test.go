package spot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type stubApplier struct {
	texts   []string
	err     error
	onApply func()
}

func (s *stubApplier) ApplyText(_ context.Context, text string) (*Report, error) {
	s.texts = append(s.texts, text)
	if s.onApply != nil {
		s.onApply()
	}
	return &Report{Committed: s.err == nil}, s.err
}

func newTestWatcher(t *testing.T, a Applier) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w := NewWatcher(WatcherConfig{Dir: dir, Filename: "spot.csv"}, a, nil)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return w, dir
}

func TestWatcher_NoFile(t *testing.T) {
	a := &stubApplier{}
	w, _ := newTestWatcher(t, a)

	report, err := w.PollOnce(context.Background())
	if err != nil || report != nil {
		t.Errorf("PollOnce() = %v, %v; want nil, nil", report, err)
	}
	if len(a.texts) != 0 {
		t.Error("applier called without a file")
	}
}

func TestWatcher_ArchivesDone(t *testing.T) {
	a := &stubApplier{}
	w, dir := newTestWatcher(t, a)
	if err := os.WriteFile(w.Path(), []byte(addItemExtended+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := w.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if len(a.texts) != 1 || !strings.Contains(a.texts[0], "FULL-1") {
		t.Errorf("applied texts = %q", a.texts)
	}
	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Error("export file not moved")
	}
	if _, err := os.Stat(filepath.Join(dir, "spot.csv.20240102T030405.000000000-0001.done")); err != nil {
		t.Errorf("archived file missing: %v", err)
	}

	// A second poll finds nothing and applies nothing.
	if _, err := w.PollOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(a.texts) != 1 {
		t.Error("file applied twice")
	}
}

func TestWatcher_ArchivesFailed(t *testing.T) {
	a := &stubApplier{err: ErrBatchAborted}
	w, dir := newTestWatcher(t, a)
	if err := os.WriteFile(w.Path(), []byte("junk\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := w.PollOnce(context.Background()); !errors.Is(err, ErrBatchAborted) {
		t.Fatalf("PollOnce() error = %v, want ErrBatchAborted", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "spot.csv.20240102T030405.000000000-0001.failed")); err != nil {
		t.Errorf("failed archive missing: %v", err)
	}
}

func TestWatcher_LinesWrittenDuringApplyKept(t *testing.T) {
	a := &stubApplier{}
	w, dir := newTestWatcher(t, a)
	if err := os.WriteFile(w.Path(), []byte("first batch\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// The POS appends while the first batch is being applied.
	a.onApply = func() {
		a.onApply = nil
		f, err := os.OpenFile(w.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close() //nolint:errcheck // Test helper
		if _, err := f.WriteString("second batch\n"); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := w.PollOnce(context.Background()); err != nil {
		t.Fatalf("first PollOnce() error = %v", err)
	}
	if _, err := w.PollOnce(context.Background()); err != nil {
		t.Fatalf("second PollOnce() error = %v", err)
	}

	if len(a.texts) != 2 || a.texts[0] != "first batch\n" || a.texts[1] != "second batch\n" {
		t.Errorf("applied texts = %q, want both batches once", a.texts)
	}
	// Both polls share a timestamp; the sequence keeps the archives apart.
	for _, name := range []string{
		"spot.csv.20240102T030405.000000000-0001.done",
		"spot.csv.20240102T030405.000000000-0002.done",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("archive %s missing: %v", name, err)
		}
	}
}

func TestWatcher_ResumesInterruptedClaim(t *testing.T) {
	a := &stubApplier{}
	w, dir := newTestWatcher(t, a)
	if err := os.WriteFile(w.Path(), []byte("batch\n"), 0600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.err = context.Canceled
	a.onApply = cancel
	if _, err := w.PollOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("PollOnce() error = %v, want context.Canceled", err)
	}
	claim := filepath.Join(dir, "spot.csv.20240102T030405.000000000-0001.processing")
	if _, err := os.Stat(claim); err != nil {
		t.Fatalf("claim missing after cancel: %v", err)
	}

	a.err = nil
	a.onApply = nil
	if _, err := w.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce() error = %v", err)
	}
	if len(a.texts) != 2 || a.texts[1] != "batch\n" {
		t.Errorf("applied texts = %q, want the claim applied again", a.texts)
	}
	if _, err := os.Stat(filepath.Join(dir, "spot.csv.20240102T030405.000000000-0001.done")); err != nil {
		t.Errorf("resumed claim not archived: %v", err)
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	w, _ := newTestWatcher(t, &stubApplier{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
