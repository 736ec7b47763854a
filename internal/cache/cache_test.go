package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key("12345", "call-9")
	b := Key("12345", "call-9")
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
	if a != "ticket12345_callcall-9" {
		t.Errorf("unexpected key %q", a)
	}
	if Key("12345", "other") == a {
		t.Error("different call ids must map to different keys")
	}
}

func TestPaths(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := Key("7", "42")
	if filepath.Base(c.AudioPath(key)) != "ticket7_call42.mp3" {
		t.Errorf("unexpected audio path %s", c.AudioPath(key))
	}
	if filepath.Base(c.TranscriptPath(key)) != "ticket7_call42.txt" {
		t.Errorf("unexpected transcript path %s", c.TranscriptPath(key))
	}
	if filepath.Base(c.SummaryPath("7")) != "ticket7_combined_summary.txt" {
		t.Errorf("unexpected summary path %s", c.SummaryPath("7"))
	}
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	if _, err := New(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory to exist: %v", err)
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	c, _ := New(t.TempDir())
	key := Key("100", "abc")

	if c.HasTranscript(key) {
		t.Fatal("transcript should not exist yet")
	}
	if _, err := c.ReadTranscript(key); err == nil {
		t.Fatal("expected error reading missing transcript")
	}

	if err := c.WriteTranscript(key, "hello from the call"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.HasTranscript(key) {
		t.Fatal("transcript should exist after write")
	}
	got, err := c.ReadTranscript(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello from the call" {
		t.Errorf("unexpected transcript %q", got)
	}
}

func TestHasAudio(t *testing.T) {
	c, _ := New(t.TempDir())
	key := Key("100", "abc")
	if c.HasAudio(key) {
		t.Fatal("audio should not exist yet")
	}
	if err := os.WriteFile(c.AudioPath(key), []byte("mp3bytes"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if !c.HasAudio(key) {
		t.Error("audio should exist after write")
	}
}

func TestWriteSummary(t *testing.T) {
	c, _ := New(t.TempDir())
	if err := c.WriteSummary("55", "## Call 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(c.SummaryPath("55"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if string(data) != "## Call 1" {
		t.Errorf("unexpected summary %q", data)
	}
}
