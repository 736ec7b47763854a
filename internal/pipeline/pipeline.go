// Package pipeline drives ticket processing end to end: fetch metadata,
// gate closed tickets, enumerate recordings, download and transcribe each
// one, summarize across calls, and deliver the result.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/callscribe-io/callscribe/internal/cache"
	"github.com/callscribe-io/callscribe/internal/summary"
	"github.com/callscribe-io/callscribe/pkg/voicecall"
)

// previewLines bounds the summary preview printed to the console.
const previewLines = 15

// TicketService is the ticketing-side collaborator. This interface keeps the
// pipeline testable without a live Zendesk instance.
type TicketService interface {
	Ticket(ctx context.Context, ticketID string) (voicecall.TicketContext, error)
	VoiceRecordings(ctx context.Context, ticketID string) ([]voicecall.Recording, error)
	DownloadRecording(ctx context.Context, url, dest string, progress func(done, total int64)) error
	AddPrivateNote(ctx context.Context, ticketID, body string) error
}

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Summarizer produces the consolidated markdown summary for a ticket's
// transcripts.
type Summarizer interface {
	Combined(ctx context.Context, transcripts []voicecall.Transcript, tctx voicecall.TicketContext) (string, error)
}

// ProcessingError is a per-recording failure after retry exhaustion. It is
// scoped to one recording and never aborts the ticket.
type ProcessingError struct {
	CallID string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("pipeline: recording (call %s): %v", e.CallID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ClosedTicketPolicy decides what happens when a ticket turns out to be
// closed. Closed tickets cannot receive updates, so confirmed processing
// always disables posting.
type ClosedTicketPolicy string

const (
	// ClosedPrompt asks the operator interactively.
	ClosedPrompt ClosedTicketPolicy = "prompt"
	// ClosedAlways processes closed tickets without asking.
	ClosedAlways ClosedTicketPolicy = "always"
	// ClosedNever skips closed tickets without asking.
	ClosedNever ClosedTicketPolicy = "never"
)

// Options controls per-run pipeline behavior.
type Options struct {
	// PostSummaries posts the combined summary back as a private note.
	PostSummaries bool
	// SkipExisting only changes messaging: cached transcripts are always
	// reused either way.
	SkipExisting bool
	// ClosedTickets picks the closed-ticket policy.
	ClosedTickets ClosedTicketPolicy
	// Confirm is consulted under ClosedPrompt. A nil Confirm declines.
	Confirm func(ticketID string) bool
}

// Pipeline processes one ticket at a time, strictly sequentially.
type Pipeline struct {
	Tickets     TicketService
	Transcriber Transcriber
	Summarizer  Summarizer
	Cache       *cache.Cache
	Logger      *slog.Logger
	// Out receives operator-facing console output.
	Out     io.Writer
	Options Options
}

// ProcessTicket runs the full pipeline for one ticket and returns its
// terminal result. Stages short-circuit to a terminal status; per-recording
// failures are counted, never fatal.
func (p *Pipeline) ProcessTicket(ctx context.Context, ticketID string) voicecall.TicketResult {
	start := time.Now()

	fmt.Fprintf(p.Out, "\nProcessing Ticket #%s\n", ticketID)
	fmt.Fprintln(p.Out, strings.Repeat("=", 60))

	// Stage 1: fetch ticket context.
	fmt.Fprintln(p.Out, "Fetching ticket details...")
	tctx, err := p.Tickets.Ticket(ctx, ticketID)
	if err != nil {
		p.Logger.Error("failed to fetch ticket", "ticket", ticketID, "error", err)
		return voicecall.TicketResult{
			TicketID: ticketID,
			Status:   voicecall.ResultFailed,
			Err:      err,
			Elapsed:  time.Since(start),
		}
	}
	fmt.Fprintf(p.Out, "   Subject: %s\n", tctx.Subject)
	fmt.Fprintf(p.Out, "   Customer: %s\n", tctx.Requester)
	fmt.Fprintf(p.Out, "   Agent: %s\n", tctx.Assignee)
	fmt.Fprintf(p.Out, "   Status: %s\n", strings.ToUpper(string(tctx.Status)))

	// Stage 2: closed-ticket gate.
	post := p.Options.PostSummaries
	if tctx.Closed() {
		if !p.confirmClosed(ticketID) {
			fmt.Fprintln(p.Out, "\n   Skipping closed ticket.")
			return voicecall.TicketResult{
				TicketID: ticketID,
				Status:   voicecall.ResultSkippedClosed,
				Elapsed:  time.Since(start),
			}
		}
		// Closed tickets cannot be updated; force console delivery.
		post = false
		fmt.Fprintln(p.Out, "   Processing will continue but the summary will NOT be posted.")
	}

	// Stage 3: enumerate voice recordings.
	fmt.Fprintln(p.Out, "\nSearching for voice recordings...")
	recordings, err := p.Tickets.VoiceRecordings(ctx, ticketID)
	if err != nil {
		p.Logger.Error("failed to list recordings", "ticket", ticketID, "error", err)
		return voicecall.TicketResult{
			TicketID: ticketID,
			Status:   voicecall.ResultFailed,
			Err:      err,
			Elapsed:  time.Since(start),
		}
	}
	if len(recordings) == 0 {
		fmt.Fprintln(p.Out, "   No voice recordings found for this ticket.")
		return voicecall.TicketResult{
			TicketID: ticketID,
			Status:   voicecall.ResultNoRecordings,
			Elapsed:  time.Since(start),
		}
	}
	fmt.Fprintf(p.Out, "   Found %d voice recording(s)\n", len(recordings))

	// Stage 4: download and transcribe, one recording at a time.
	fmt.Fprintf(p.Out, "\nPhase 1: Downloading and transcribing %d recording(s)...\n", len(recordings))
	var transcripts []voicecall.Transcript
	errCount := 0
	for i, rec := range recordings {
		tr, err := p.processRecording(ctx, ticketID, rec, i+1, len(recordings))
		if err != nil {
			errCount++
			p.Logger.Error("recording failed", "ticket", ticketID, "call", rec.CallID, "error", err)
			fmt.Fprintf(p.Out, "   Error processing recording: %v\n", err)
			continue
		}
		transcripts = append(transcripts, tr)
	}

	// Stage 5: nothing transcribed means nothing to summarize.
	if len(transcripts) == 0 {
		fmt.Fprintln(p.Out, "\nNo transcripts were successfully processed.")
		return voicecall.TicketResult{
			TicketID: ticketID,
			Status:   voicecall.ResultFailed,
			Errors:   errCount,
			Err:      fmt.Errorf("no transcripts processed"),
			Elapsed:  time.Since(start),
		}
	}

	// Stage 6: summarize across all calls. Failure here is counted but the
	// transcripts already produced still make the ticket worthwhile.
	fmt.Fprintf(p.Out, "\nPhase 2: Summarizing %d transcript(s)...\n", len(transcripts))
	combined, err := p.Summarizer.Combined(ctx, transcripts, tctx)
	if err != nil {
		errCount++
		p.Logger.Error("summarization failed", "ticket", ticketID, "error", err)
		fmt.Fprintf(p.Out, "   Failed to summarize transcripts: %v\n", err)
	} else {
		if werr := p.Cache.WriteSummary(ticketID, combined); werr != nil {
			p.Logger.Warn("could not persist summary", "ticket", ticketID, "error", werr)
		} else {
			fmt.Fprintf(p.Out, "   Saved combined summary: %s\n", p.Cache.SummaryPath(ticketID))
		}
		p.printPreview(combined)

		// Stage 7: deliver.
		p.deliver(ctx, ticketID, combined, post)
	}

	// Stage 8: finalize.
	elapsed := time.Since(start)
	fmt.Fprintf(p.Out, "\nTicket #%s complete: %d/%d recordings", ticketID, len(transcripts), len(recordings))
	if errCount > 0 {
		fmt.Fprintf(p.Out, ", %d error(s)", errCount)
	}
	fmt.Fprintf(p.Out, " in %.1fs\n", elapsed.Seconds())

	return voicecall.TicketResult{
		TicketID:            ticketID,
		Status:              voicecall.ResultCompleted,
		RecordingsProcessed: len(transcripts),
		Errors:              errCount,
		Elapsed:             elapsed,
	}
}

// processRecording ensures the audio and transcript artifacts exist for one
// recording, downloading and transcribing only what the cache is missing.
func (p *Pipeline) processRecording(ctx context.Context, ticketID string, rec voicecall.Recording, idx, total int) (voicecall.Transcript, error) {
	fmt.Fprintf(p.Out, "\nProcessing recording %d/%d (Call ID: %s)\n", idx, total, rec.CallID)
	if rec.Duration > 0 {
		fmt.Fprintf(p.Out, "   Duration: %s\n", summary.FormatDuration(rec.Duration))
	}
	if rec.From != "" && rec.To != "" {
		fmt.Fprintf(p.Out, "   From: %s -> To: %s\n", rec.From, rec.To)
	}

	key := cache.Key(ticketID, rec.CallID)

	var text string
	if p.Cache.HasTranscript(key) {
		if p.Options.SkipExisting {
			fmt.Fprintln(p.Out, "   Skipping - transcript already exists")
		}
		fmt.Fprintln(p.Out, "   Loading existing transcript...")
		cached, err := p.Cache.ReadTranscript(key)
		if err != nil {
			return voicecall.Transcript{}, &ProcessingError{CallID: rec.CallID, Err: err}
		}
		text = cached
	} else {
		audioPath := p.Cache.AudioPath(key)
		if !p.Cache.HasAudio(key) {
			fmt.Fprintln(p.Out, "   Downloading audio...")
			err := p.Tickets.DownloadRecording(ctx, rec.RecordingURL, audioPath, p.printProgress)
			if err != nil {
				return voicecall.Transcript{}, &ProcessingError{CallID: rec.CallID, Err: err}
			}
			fmt.Fprintf(p.Out, "\r   Downloaded: %s\n", audioPath)
		} else {
			fmt.Fprintf(p.Out, "   Audio file exists: %s\n", audioPath)
		}

		fmt.Fprintln(p.Out, "   Transcribing audio...")
		transcribed, err := p.Transcriber.Transcribe(ctx, audioPath)
		if err != nil {
			return voicecall.Transcript{}, &ProcessingError{CallID: rec.CallID, Err: err}
		}
		if err := p.Cache.WriteTranscript(key, transcribed); err != nil {
			return voicecall.Transcript{}, &ProcessingError{CallID: rec.CallID, Err: err}
		}
		fmt.Fprintf(p.Out, "   Saved transcript: %s\n", p.Cache.TranscriptPath(key))
		text = transcribed
	}

	return voicecall.Transcript{
		CallID:      rec.CallID,
		From:        rec.From,
		To:          rec.To,
		Duration:    rec.Duration,
		StartedAt:   rec.StartedAt,
		Text:        text,
		ArtifactKey: key,
	}, nil
}

func (p *Pipeline) confirmClosed(ticketID string) bool {
	switch p.Options.ClosedTickets {
	case ClosedAlways:
		return true
	case ClosedNever:
		return false
	default:
		fmt.Fprintln(p.Out, "\nWARNING: This ticket is CLOSED and cannot be updated.")
		if p.Options.Confirm == nil {
			return false
		}
		return p.Options.Confirm(ticketID)
	}
}

// deliver posts the summary as a private note when allowed, otherwise (or on
// posting failure) prints it to the console.
func (p *Pipeline) deliver(ctx context.Context, ticketID, combined string, post bool) {
	if !post {
		fmt.Fprintln(p.Out, "\nPhase 3: Posting disabled - summary displayed below")
		p.printSummaryBanner(combined)
		return
	}

	fmt.Fprintln(p.Out, "\nPhase 3: Posting combined summary...")
	if err := p.Tickets.AddPrivateNote(ctx, ticketID, combined); err != nil {
		p.Logger.Error("failed to post note", "ticket", ticketID, "error", err)
		fmt.Fprintf(p.Out, "   Error adding comment to ticket %s: %v\n", ticketID, err)
		fmt.Fprintln(p.Out, "   Summary will be displayed in console instead:")
		p.printSummaryBanner(combined)
		return
	}
	fmt.Fprintf(p.Out, "   Added private comment to ticket %s\n", ticketID)
}

func (p *Pipeline) printPreview(combined string) {
	fmt.Fprintln(p.Out, "\n   Summary Preview:")
	lines := strings.Split(combined, "\n")
	for i, line := range lines {
		if i == previewLines {
			fmt.Fprintln(p.Out, "      ...")
			break
		}
		fmt.Fprintf(p.Out, "      %s\n", line)
	}
}

func (p *Pipeline) printSummaryBanner(combined string) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintf(p.Out, "\n%s SUMMARY %s\n", rule, rule)
	fmt.Fprintln(p.Out, combined)
	fmt.Fprintln(p.Out, strings.Repeat("=", 110))
}

func (p *Pipeline) printProgress(done, total int64) {
	if total > 0 {
		fmt.Fprintf(p.Out, "\r    Downloading: %.1f%%", float64(done)/float64(total)*100)
	}
}
