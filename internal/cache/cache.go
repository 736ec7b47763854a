// Package cache is the local artifact cache: it maps a (ticket, call) pair
// to deterministic on-disk paths for the audio blob and transcript text, so
// re-runs skip completed downloads and transcriptions.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// Cache stores artifacts as flat files under a single directory. There is no
// eviction, expiry, or integrity checking; staleness is the operator's
// responsibility.
type Cache struct {
	dir string
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Key derives the deterministic artifact key for a recording. Identical
// (ticketID, callID) pairs always map to the same key, which is what makes
// cross-run reuse work.
func Key(ticketID, callID string) string {
	return fmt.Sprintf("ticket%s_call%s", ticketID, callID)
}

// AudioPath returns the on-disk path for a recording's audio blob.
func (c *Cache) AudioPath(key string) string {
	return filepath.Join(c.dir, key+".mp3")
}

// TranscriptPath returns the on-disk path for a recording's transcript text.
func (c *Cache) TranscriptPath(key string) string {
	return filepath.Join(c.dir, key+".txt")
}

// SummaryPath returns the on-disk path for a ticket's combined summary.
func (c *Cache) SummaryPath(ticketID string) string {
	return filepath.Join(c.dir, fmt.Sprintf("ticket%s_combined_summary.txt", ticketID))
}

// HasAudio reports whether the audio artifact exists.
func (c *Cache) HasAudio(key string) bool {
	return exists(c.AudioPath(key))
}

// HasTranscript reports whether the transcript artifact exists.
func (c *Cache) HasTranscript(key string) bool {
	return exists(c.TranscriptPath(key))
}

// ReadTranscript loads a cached transcript.
func (c *Cache) ReadTranscript(key string) (string, error) {
	data, err := os.ReadFile(c.TranscriptPath(key))
	if err != nil {
		return "", fmt.Errorf("cache: read transcript %s: %w", key, err)
	}
	return string(data), nil
}

// WriteTranscript persists a transcript for future runs.
func (c *Cache) WriteTranscript(key, text string) error {
	if err := os.WriteFile(c.TranscriptPath(key), []byte(text), 0o644); err != nil {
		return fmt.Errorf("cache: write transcript %s: %w", key, err)
	}
	return nil
}

// WriteSummary persists a ticket's combined summary. Summaries are written
// for the operator's benefit but never read back: each run re-summarizes.
func (c *Cache) WriteSummary(ticketID, text string) error {
	if err := os.WriteFile(c.SummaryPath(ticketID), []byte(text), 0o644); err != nil {
		return fmt.Errorf("cache: write summary for ticket %s: %w", ticketID, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
