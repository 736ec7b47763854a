// Package summary builds summarization prompts, calls the language model,
// and normalizes multi-call output into a stable markdown layout.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/callscribe-io/callscribe/pkg/voicecall"
)

const (
	singleCallSystem = "You summarize support desk call transcripts for other support agents."
	multiCallSystem  = "You summarize support desk call transcripts for other support agents. " +
		"Format your response clearly with sections for each call."
)

// LLM is the completion capability the summarizer needs.
type LLM interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Summarizer turns call transcripts into markdown summaries.
type Summarizer struct {
	llm LLM
}

// New creates a Summarizer backed by the given model client.
func New(llm LLM) *Summarizer {
	return &Summarizer{llm: llm}
}

// SingleCall summarizes one transcript into three headed sections:
// "Description of the Call", "Troubleshooting", and "Next Steps". Downstream
// consumers rely on exactly that heading layout.
func (s *Summarizer) SingleCall(ctx context.Context, transcript string, tctx voicecall.TicketContext) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional support desk call summarizer. ")
	fmt.Fprintf(&b, "The customer is '%s', and the support agent is '%s'. ", tctx.Requester, tctx.Assignee)
	fmt.Fprintf(&b, "The overall ticket subject is: '%s'. ", tctx.Subject)
	b.WriteString("Write a summary for the following support call transcript. ")
	b.WriteString("Do NOT use any emojis.\n\n")
	b.WriteString("Create three clear sections, each with a markdown heading: " +
		"'Description of the Call', 'Troubleshooting', and 'Next Steps'. \n")
	b.WriteString("- Description: Clearly state what specific issue(s) the customer called about\n")
	b.WriteString("- Troubleshooting: List ALL technical steps discussed or attempted as bullet points\n")
	b.WriteString("- Next Steps: List ALL follow-up actions or pending items as bullet points\n\n")
	b.WriteString("Be concise but ensure NO important technical details, troubleshooting steps, or follow-up items are omitted.\n")
	b.WriteString("--- BEGIN CALL TRANSCRIPT ---\n")
	b.WriteString(transcript)
	b.WriteString("\n--- END CALL TRANSCRIPT ---")

	return s.llm.Complete(ctx, singleCallSystem, b.String())
}

// Combined summarizes every transcript on a ticket into one markdown
// document. A single call gets the single-call summary under a timestamp
// header; multiple calls get one three-section block per call, re-segmented
// under "## Call <n>" headings.
func (s *Summarizer) Combined(ctx context.Context, transcripts []voicecall.Transcript, tctx voicecall.TicketContext) (string, error) {
	if len(transcripts) == 0 {
		return "", fmt.Errorf("summary: no transcripts to summarize")
	}

	if len(transcripts) == 1 {
		tr := transcripts[0]
		body, err := s.SingleCall(ctx, tr.Text, tctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("**Call on %s**\n\n%s", timestampOrUnknown(tr.StartedAt), body), nil
	}

	raw, err := s.llm.Complete(ctx, multiCallSystem, multiCallPrompt(transcripts, tctx))
	if err != nil {
		return "", err
	}
	return formatCombined(raw, transcripts), nil
}

func multiCallPrompt(transcripts []voicecall.Transcript, tctx voicecall.TicketContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional support desk call summarizer. ")
	fmt.Fprintf(&b, "The customer is '%s', and the support agent is '%s'. ", tctx.Requester, tctx.Assignee)
	fmt.Fprintf(&b, "The overall ticket subject is: '%s'. ", tctx.Subject)
	fmt.Fprintf(&b, "You are summarizing %d separate calls about the same issue. ", len(transcripts))
	b.WriteString("Do NOT use any emojis. Do NOT use ### or any other separators between calls.\n\n")
	b.WriteString("For EACH call, you MUST capture ALL of the following:\n")
	b.WriteString("   - The specific issues or problems being addressed in that call\n")
	b.WriteString("   - All troubleshooting steps discussed or attempted during that call\n")
	b.WriteString("   - Any follow-up items, next steps, or pending actions from that call\n\n")
	b.WriteString("Create a summary for EACH call separately, with each call having its own three sections: " +
		"'Description of the Call', 'Troubleshooting', and 'Next Steps'. \n")
	b.WriteString("- Description: Clearly state what specific issue(s) were discussed in this call\n")
	b.WriteString("- Troubleshooting: List ALL technical steps discussed or attempted as bullet points\n")
	b.WriteString("- Next Steps: List ALL follow-up actions or pending items as bullet points\n\n")
	b.WriteString("Format each call as 'CALL X' where X is the call number.\n")
	b.WriteString("Be concise but ensure NO important technical details, troubleshooting steps, or follow-up items are omitted from any call.\n\n")

	for i, tr := range transcripts {
		fmt.Fprintf(&b, "--- CALL %d of %d ---\n", i+1, len(transcripts))
		fmt.Fprintf(&b, "Date/Time: %s\n", timestampOrUnknown(tr.StartedAt))
		fmt.Fprintf(&b, "Duration: %s\n", durationOrUnknown(tr.Duration))
		fmt.Fprintf(&b, "From: %s -> To: %s\n", tr.From, tr.To)
		fmt.Fprintf(&b, "Call ID: %s\n", tr.CallID)
		b.WriteString("--- BEGIN TRANSCRIPT ---\n")
		b.WriteString(tr.Text)
		b.WriteString("\n--- END TRANSCRIPT ---\n\n")
	}
	return b.String()
}

func timestampOrUnknown(iso string) string {
	if iso == "" {
		return "Unknown time"
	}
	return FormatTimestamp(iso)
}

func durationOrUnknown(seconds int) string {
	if seconds == 0 {
		return "Unknown duration"
	}
	return FormatDuration(seconds)
}
