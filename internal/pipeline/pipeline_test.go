package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/callscribe-io/callscribe/internal/cache"
	"github.com/callscribe-io/callscribe/pkg/voicecall"
)

// mockTicketService implements TicketService with canned data and call
// counters.
type mockTicketService struct {
	tctx        voicecall.TicketContext
	tctxErr     error
	recordings  []voicecall.Recording
	recErr      error
	downloadErr map[string]error // keyed by recording URL
	downloads   int
	notes       []string
	noteErr     error
}

func (m *mockTicketService) Ticket(ctx context.Context, ticketID string) (voicecall.TicketContext, error) {
	if m.tctxErr != nil {
		return voicecall.TicketContext{}, m.tctxErr
	}
	return m.tctx, nil
}

func (m *mockTicketService) VoiceRecordings(ctx context.Context, ticketID string) ([]voicecall.Recording, error) {
	if m.recErr != nil {
		return nil, m.recErr
	}
	return m.recordings, nil
}

func (m *mockTicketService) DownloadRecording(ctx context.Context, url, dest string, progress func(done, total int64)) error {
	m.downloads++
	if err := m.downloadErr[url]; err != nil {
		return err
	}
	data := []byte("audio from " + url)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	if progress != nil {
		progress(int64(len(data)), int64(len(data)))
	}
	return nil
}

func (m *mockTicketService) AddPrivateNote(ctx context.Context, ticketID, body string) error {
	if m.noteErr != nil {
		return m.noteErr
	}
	m.notes = append(m.notes, body)
	return nil
}

type mockTranscriber struct {
	calls int
	err   error
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "transcript for " + audioPath, nil
}

const cannedSummary = "## Description of the Call\nstuff\n## Troubleshooting\n- step\n## Next Steps\n- follow up"

type mockSummarizer struct {
	calls int
	got   []voicecall.Transcript
	err   error
}

func (m *mockSummarizer) Combined(ctx context.Context, transcripts []voicecall.Transcript, tctx voicecall.TicketContext) (string, error) {
	m.calls++
	m.got = transcripts
	if m.err != nil {
		return "", m.err
	}
	return cannedSummary, nil
}

func recording(callID string) voicecall.Recording {
	return voicecall.Recording{
		CallID:       callID,
		RecordingURL: "http://recordings.example.com/" + callID,
		From:         "+15550001",
		To:           "+15550002",
		Duration:     95,
		StartedAt:    "2025-03-01T17:00:00Z",
	}
}

type testEnv struct {
	pipeline *Pipeline
	tickets  *mockTicketService
	stt      *mockTranscriber
	sum      *mockSummarizer
	out      *bytes.Buffer
}

func newTestEnv(t *testing.T, tickets *mockTicketService, opts Options) *testEnv {
	t.Helper()
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	stt := &mockTranscriber{}
	sum := &mockSummarizer{}
	out := &bytes.Buffer{}
	return &testEnv{
		pipeline: &Pipeline{
			Tickets:     tickets,
			Transcriber: stt,
			Summarizer:  sum,
			Cache:       c,
			Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			Out:         out,
			Options:     opts,
		},
		tickets: tickets,
		stt:     stt,
		sum:     sum,
		out:     out,
	}
}

func openTicket() voicecall.TicketContext {
	return voicecall.TicketContext{
		Requester: "Dana",
		Assignee:  "Sam",
		Subject:   "Printer on fire",
		Status:    voicecall.TicketOpen,
	}
}

func closedTicket() voicecall.TicketContext {
	tctx := openTicket()
	tctx.Status = voicecall.TicketClosed
	return tctx
}

// Scenario A: open ticket, one recording, everything succeeds, posting on.
func TestProcessTicket_CompletedAndPosted(t *testing.T) {
	tickets := &mockTicketService{
		tctx:       openTicket(),
		recordings: []voicecall.Recording{recording("901")},
	}
	env := newTestEnv(t, tickets, Options{PostSummaries: true})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")

	if got.Status != voicecall.ResultCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.RecordingsProcessed != 1 || got.Errors != 0 {
		t.Errorf("expected {1, 0}, got {%d, %d}", got.RecordingsProcessed, got.Errors)
	}
	if len(tickets.notes) != 1 {
		t.Fatalf("expected 1 posted note, got %d", len(tickets.notes))
	}
	for _, heading := range []string{"Description of the Call", "Troubleshooting", "Next Steps"} {
		if !strings.Contains(tickets.notes[0], heading) {
			t.Errorf("posted note missing heading %q", heading)
		}
	}
	if env.stt.calls != 1 || tickets.downloads != 1 {
		t.Errorf("expected 1 transcription and 1 download, got %d/%d", env.stt.calls, tickets.downloads)
	}
	// The summary artifact is persisted.
	if _, err := os.Stat(env.pipeline.Cache.SummaryPath("12345")); err != nil {
		t.Errorf("summary artifact missing: %v", err)
	}
}

// Scenario B: closed ticket, operator confirms; posting force-disabled,
// summary delivered to the console.
func TestProcessTicket_ClosedConfirmedDisablesPosting(t *testing.T) {
	tickets := &mockTicketService{
		tctx:       closedTicket(),
		recordings: []voicecall.Recording{recording("901")},
	}
	confirmed := false
	env := newTestEnv(t, tickets, Options{
		PostSummaries: true,
		ClosedTickets: ClosedPrompt,
		Confirm:       func(ticketID string) bool { confirmed = true; return true },
	})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")

	if !confirmed {
		t.Error("expected operator confirmation to be consulted")
	}
	if got.Status != voicecall.ResultCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if len(tickets.notes) != 0 {
		t.Errorf("no note may be posted to a closed ticket, got %d", len(tickets.notes))
	}
	if !strings.Contains(env.out.String(), " SUMMARY ") {
		t.Error("expected console summary banner")
	}
	if !strings.Contains(env.out.String(), cannedSummary) {
		t.Error("expected full summary on the console")
	}
}

// Scenario C: two recordings, one fails; ticket still completes.
func TestProcessTicket_PartialRecordingFailure(t *testing.T) {
	bad := recording("902")
	tickets := &mockTicketService{
		tctx:        openTicket(),
		recordings:  []voicecall.Recording{recording("901"), bad},
		downloadErr: map[string]error{bad.RecordingURL: errors.New("connection reset")},
	}
	env := newTestEnv(t, tickets, Options{PostSummaries: true})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")

	if got.Status != voicecall.ResultCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.RecordingsProcessed != 1 || got.Errors != 1 {
		t.Errorf("expected {1, 1}, got {%d, %d}", got.RecordingsProcessed, got.Errors)
	}
	if len(env.sum.got) != 1 {
		t.Errorf("expected 1 transcript summarized, got %d", len(env.sum.got))
	}
	if env.sum.got[0].CallID != "901" {
		t.Errorf("unexpected surviving call %s", env.sum.got[0].CallID)
	}
}

func TestProcessTicket_ClosedDeclined(t *testing.T) {
	tickets := &mockTicketService{
		tctx:       closedTicket(),
		recordings: []voicecall.Recording{recording("901")},
	}
	env := newTestEnv(t, tickets, Options{
		PostSummaries: true,
		ClosedTickets: ClosedPrompt,
		Confirm:       func(string) bool { return false },
	})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")

	if got.Status != voicecall.ResultSkippedClosed {
		t.Fatalf("expected skipped_closed, got %s", got.Status)
	}
	if got.RecordingsProcessed != 0 || got.Errors != 0 {
		t.Errorf("expected {0, 0}, got {%d, %d}", got.RecordingsProcessed, got.Errors)
	}
	if tickets.downloads != 0 || env.stt.calls != 0 || env.sum.calls != 0 || len(tickets.notes) != 0 {
		t.Error("declined closed ticket must trigger no downstream work")
	}
}

func TestProcessTicket_ClosedPolicyNever(t *testing.T) {
	tickets := &mockTicketService{tctx: closedTicket()}
	env := newTestEnv(t, tickets, Options{ClosedTickets: ClosedNever})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")
	if got.Status != voicecall.ResultSkippedClosed {
		t.Fatalf("expected skipped_closed, got %s", got.Status)
	}
}

func TestProcessTicket_ClosedPromptWithoutConfirmerDeclines(t *testing.T) {
	tickets := &mockTicketService{tctx: closedTicket()}
	env := newTestEnv(t, tickets, Options{ClosedTickets: ClosedPrompt})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")
	if got.Status != voicecall.ResultSkippedClosed {
		t.Fatalf("expected skipped_closed, got %s", got.Status)
	}
}

func TestProcessTicket_NoRecordings(t *testing.T) {
	tickets := &mockTicketService{tctx: openTicket()}
	env := newTestEnv(t, tickets, Options{PostSummaries: true})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")

	if got.Status != voicecall.ResultNoRecordings {
		t.Fatalf("expected no_recordings, got %s", got.Status)
	}
	if tickets.downloads != 0 || env.stt.calls != 0 || env.sum.calls != 0 {
		t.Error("no downstream calls may happen without recordings")
	}
}

func TestProcessTicket_ContextFetchFails(t *testing.T) {
	tickets := &mockTicketService{tctxErr: errors.New("api down")}
	env := newTestEnv(t, tickets, Options{})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")
	if got.Status != voicecall.ResultFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Err == nil {
		t.Error("expected error in result")
	}
}

func TestProcessTicket_EnumerationFails(t *testing.T) {
	tickets := &mockTicketService{tctx: openTicket(), recErr: errors.New("api down")}
	env := newTestEnv(t, tickets, Options{})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")
	if got.Status != voicecall.ResultFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestProcessTicket_AllRecordingsFail(t *testing.T) {
	r1, r2 := recording("901"), recording("902")
	tickets := &mockTicketService{
		tctx:       openTicket(),
		recordings: []voicecall.Recording{r1, r2},
		downloadErr: map[string]error{
			r1.RecordingURL: errors.New("boom"),
			r2.RecordingURL: errors.New("boom"),
		},
	}
	env := newTestEnv(t, tickets, Options{})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")

	if got.Status != voicecall.ResultFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Errors != 2 {
		t.Errorf("expected 2 errors, got %d", got.Errors)
	}
	if env.sum.calls != 0 {
		t.Error("summarizer must not run with zero transcripts")
	}
}

func TestProcessTicket_SummarizeFailureStillCompletes(t *testing.T) {
	tickets := &mockTicketService{
		tctx:       openTicket(),
		recordings: []voicecall.Recording{recording("901")},
	}
	env := newTestEnv(t, tickets, Options{PostSummaries: true})
	env.sum.err = errors.New("model unavailable")

	got := env.pipeline.ProcessTicket(context.Background(), "12345")

	if got.Status != voicecall.ResultCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.RecordingsProcessed != 1 || got.Errors != 1 {
		t.Errorf("expected {1, 1}, got {%d, %d}", got.RecordingsProcessed, got.Errors)
	}
	if len(tickets.notes) != 0 {
		t.Error("nothing to post after summarization failure")
	}
}

func TestProcessTicket_PostFailureFallsBackToConsole(t *testing.T) {
	tickets := &mockTicketService{
		tctx:       openTicket(),
		recordings: []voicecall.Recording{recording("901")},
		noteErr:    errors.New("422 unprocessable"),
	}
	env := newTestEnv(t, tickets, Options{PostSummaries: true})

	got := env.pipeline.ProcessTicket(context.Background(), "12345")

	if got.Status != voicecall.ResultCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if !strings.Contains(env.out.String(), cannedSummary) {
		t.Error("expected console fallback with the summary")
	}
}

func TestProcessTicket_IdempotentSecondRun(t *testing.T) {
	tickets := &mockTicketService{
		tctx:       openTicket(),
		recordings: []voicecall.Recording{recording("901"), recording("902")},
	}
	env := newTestEnv(t, tickets, Options{PostSummaries: false})

	first := env.pipeline.ProcessTicket(context.Background(), "12345")
	if first.Status != voicecall.ResultCompleted {
		t.Fatalf("first run: expected completed, got %s", first.Status)
	}
	if tickets.downloads != 2 || env.stt.calls != 2 {
		t.Fatalf("first run: expected 2 downloads and 2 transcriptions, got %d/%d",
			tickets.downloads, env.stt.calls)
	}

	second := env.pipeline.ProcessTicket(context.Background(), "12345")
	if second.Status != voicecall.ResultCompleted {
		t.Fatalf("second run: expected completed, got %s", second.Status)
	}
	if tickets.downloads != 2 {
		t.Errorf("second run must not download again, total %d", tickets.downloads)
	}
	if env.stt.calls != 2 {
		t.Errorf("second run must not transcribe again, total %d", env.stt.calls)
	}
	// Summaries are not cached: each run re-summarizes.
	if env.sum.calls != 2 {
		t.Errorf("expected 2 summarization calls, got %d", env.sum.calls)
	}
}

func TestProcessRecording_CachedAudioMissingTranscript(t *testing.T) {
	rec := recording("901")
	tickets := &mockTicketService{tctx: openTicket(), recordings: []voicecall.Recording{rec}}
	env := newTestEnv(t, tickets, Options{})

	// Pre-seed only the audio artifact.
	key := cache.Key("12345", rec.CallID)
	if err := os.WriteFile(env.pipeline.Cache.AudioPath(key), []byte("seeded"), 0o644); err != nil {
		t.Fatalf("seed audio: %v", err)
	}

	got := env.pipeline.ProcessTicket(context.Background(), "12345")
	if got.Status != voicecall.ResultCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if tickets.downloads != 0 {
		t.Errorf("expected no download with cached audio, got %d", tickets.downloads)
	}
	if env.stt.calls != 1 {
		t.Errorf("expected 1 transcription, got %d", env.stt.calls)
	}
}

func TestProcessTicket_TranscriptMetadataCarried(t *testing.T) {
	rec := recording("901")
	tickets := &mockTicketService{tctx: openTicket(), recordings: []voicecall.Recording{rec}}
	env := newTestEnv(t, tickets, Options{})

	env.pipeline.ProcessTicket(context.Background(), "12345")

	if len(env.sum.got) != 1 {
		t.Fatalf("expected 1 transcript, got %d", len(env.sum.got))
	}
	tr := env.sum.got[0]
	if tr.CallID != rec.CallID || tr.From != rec.From || tr.To != rec.To ||
		tr.Duration != rec.Duration || tr.StartedAt != rec.StartedAt {
		t.Errorf("transcript metadata mismatch: %+v", tr)
	}
	if tr.ArtifactKey != cache.Key("12345", rec.CallID) {
		t.Errorf("unexpected artifact key %q", tr.ArtifactKey)
	}
	if tr.Text == "" {
		t.Error("transcript text must be populated")
	}
}

func TestProcessingError(t *testing.T) {
	inner := errors.New("timeout")
	err := &ProcessingError{CallID: "901", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected ProcessingError to unwrap")
	}
	if !strings.Contains(err.Error(), "901") {
		t.Errorf("expected call id in message, got %q", err.Error())
	}
	var perr *ProcessingError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &perr) {
		t.Error("expected errors.As to find ProcessingError")
	}
}
