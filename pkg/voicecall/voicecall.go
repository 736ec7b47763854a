// Package voicecall defines the domain types shared across the callscribe
// pipeline: ticket context, voice recordings, transcripts, and the terminal
// per-ticket result.
package voicecall

import "time"

// TicketStatus is the lifecycle state of a helpdesk ticket as reported by
// the ticketing service.
type TicketStatus string

const (
	TicketNew     TicketStatus = "new"
	TicketOpen    TicketStatus = "open"
	TicketPending TicketStatus = "pending"
	TicketHold    TicketStatus = "hold"
	TicketSolved  TicketStatus = "solved"
	TicketClosed  TicketStatus = "closed"
)

// TicketContext holds the ticket fields used to build summarization prompts
// and to gate closed-ticket processing. Fetched once per ticket, immutable
// thereafter.
type TicketContext struct {
	Requester   string
	Assignee    string
	Subject     string
	Description string
	Status      TicketStatus
}

// Closed reports whether the ticket can no longer receive updates.
func (t TicketContext) Closed() bool { return t.Status == TicketClosed }

// Recording is one recorded voice call attached to a ticket. StartedAt is
// kept as the raw ISO timestamp from the wire; rendering parses it
// best-effort.
type Recording struct {
	CallID       string
	RecordingURL string
	From         string
	To           string
	Duration     int // seconds
	StartedAt    string
	CommentID    int64
}

// Transcript is the text of one successfully transcribed call together with
// the call metadata the summarizer needs. Never mutated after creation.
type Transcript struct {
	CallID      string
	From        string
	To          string
	Duration    int // seconds
	StartedAt   string
	Text        string
	ArtifactKey string
}

// ResultStatus is the terminal outcome of processing one ticket.
type ResultStatus string

const (
	ResultCompleted     ResultStatus = "completed"
	ResultFailed        ResultStatus = "failed"
	ResultSkippedClosed ResultStatus = "skipped_closed"
	ResultNoRecordings  ResultStatus = "no_recordings"
)

// TicketResult is produced exactly once per ticket by the pipeline and
// aggregated by the batch driver.
type TicketResult struct {
	TicketID            string
	Status              ResultStatus
	RecordingsProcessed int
	Errors              int
	Elapsed             time.Duration
	Err                 error
}
