package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/callscribe-io/callscribe/pkg/voicecall"
)

var ticketURLPattern = regexp.MustCompile(`/tickets/(\d+)`)

// ExtractTicketID normalizes a raw ticket reference (a numeric id, possibly
// decorated, or an agent URL) to a bare ticket id. The second return is
// false when no id could be extracted.
func ExtractTicketID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http") {
		if m := ticketURLPattern.FindStringSubmatch(raw); m != nil {
			return m[1], true
		}
		return "", false
	}

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return "", false
	}
	return digits.String(), true
}

// ExtractTicketIDs normalizes a batch of raw references, returning the valid
// ids and the inputs that yielded none.
func ExtractTicketIDs(raws []string) (ids, invalid []string) {
	for _, raw := range raws {
		if id, ok := ExtractTicketID(raw); ok {
			ids = append(ids, id)
		} else {
			invalid = append(invalid, raw)
		}
	}
	return ids, invalid
}

// Summary aggregates the results of one batch run.
type Summary struct {
	TicketsTotal     int
	TicketsCompleted int
	Recordings       int
	Errors           int
	Elapsed          time.Duration
	Failed           []voicecall.TicketResult
}

// Runner iterates the pipeline over a list of ticket ids, sequentially, and
// aggregates run statistics.
type Runner struct {
	Pipeline *Pipeline
	Logger   *slog.Logger
	Out      io.Writer
}

// Run processes every ticket id in order and returns the aggregated summary.
// A cancelled context stops the batch after the in-flight ticket.
func (r *Runner) Run(ctx context.Context, ticketIDs []string) Summary {
	logger := r.Logger.With("run_id", uuid.NewString())
	start := time.Now()

	s := Summary{TicketsTotal: len(ticketIDs)}
	for _, id := range ticketIDs {
		if ctx.Err() != nil {
			logger.Warn("run interrupted", "remaining", s.TicketsTotal-s.TicketsCompleted-len(s.Failed))
			break
		}

		result := r.Pipeline.ProcessTicket(ctx, id)
		logger.Info("ticket processed",
			"ticket", result.TicketID,
			"status", string(result.Status),
			"recordings", result.RecordingsProcessed,
			"errors", result.Errors,
		)

		s.Recordings += result.RecordingsProcessed
		s.Errors += result.Errors
		switch result.Status {
		case voicecall.ResultCompleted:
			s.TicketsCompleted++
		case voicecall.ResultFailed:
			s.Failed = append(s.Failed, result)
		}
	}
	s.Elapsed = time.Since(start)

	r.printFinal(s)
	return s
}

func (r *Runner) printFinal(s Summary) {
	fmt.Fprintln(r.Out, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(r.Out, "FINAL SUMMARY")
	fmt.Fprintln(r.Out, strings.Repeat("=", 60))
	fmt.Fprintf(r.Out, "Tickets processed: %d/%d\n", s.TicketsCompleted, s.TicketsTotal)
	fmt.Fprintf(r.Out, "Recordings processed: %d\n", s.Recordings)
	if s.Errors > 0 {
		fmt.Fprintf(r.Out, "Total errors: %d\n", s.Errors)
	}
	fmt.Fprintf(r.Out, "Total time: %.1fs\n", s.Elapsed.Seconds())

	if len(s.Failed) > 0 {
		fmt.Fprintln(r.Out, "\nFailed tickets:")
		for _, f := range s.Failed {
			fmt.Fprintf(r.Out, "   - Ticket #%s: %v\n", f.TicketID, f.Err)
		}
	}
}
