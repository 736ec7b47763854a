package summary

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/callscribe-io/callscribe/pkg/voicecall"
)

// leadingNumber matches a numbering line like "3 of 4\n" at the start of a
// model-emitted call block.
var leadingNumber = regexp.MustCompile(`^\d+[^\n]*\n`)

// formatCombined re-segments raw model output into one block per call under
// synthesized headings. The model is asked to label blocks "CALL X"; this is
// a best-effort normalization over that convention, not a parser with format
// guarantees. Calls the model dropped simply get an empty body under their
// heading.
func formatCombined(raw string, transcripts []voicecall.Transcript) string {
	blocks := strings.Split(raw, "CALL")

	var parts []string
	for i, tr := range transcripts {
		parts = append(parts, fmt.Sprintf("## Call %d - %s", i+1, timestampOrUnknown(tr.StartedAt)))
		parts = append(parts, fmt.Sprintf("*Duration: %s | From: %s -> To: %s*\n",
			durationOrUnknown(tr.Duration), tr.From, tr.To))

		if i+1 < len(blocks) {
			body := strings.TrimSpace(blocks[i+1])
			body = leadingNumber.ReplaceAllString(body, "")
			body = strings.TrimSpace(strings.ReplaceAll(body, "###", ""))
			parts = append(parts, body)
			if i < len(transcripts)-1 {
				parts = append(parts, "\n---\n")
			}
		}
	}
	return strings.Join(parts, "\n")
}
