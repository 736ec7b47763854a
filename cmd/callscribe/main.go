// Command callscribe transcribes and summarizes the voice recordings on
// helpdesk tickets. Invoked with ticket numbers or agent URLs it processes
// them in order; invoked with no arguments it prompts for them.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/callscribe-io/callscribe/internal/cache"
	"github.com/callscribe-io/callscribe/internal/config"
	"github.com/callscribe-io/callscribe/internal/openai"
	"github.com/callscribe-io/callscribe/internal/pipeline"
	"github.com/callscribe-io/callscribe/internal/summary"
	"github.com/callscribe-io/callscribe/internal/zendesk"
)

func main() {
	noPost := flag.Bool("no-post", false, "Skip posting summaries back to the ticket")
	skipExisting := flag.Bool("skip-existing", false, "Note recordings whose transcripts are already cached")
	processClosed := flag.String("process-closed", "prompt", "Closed-ticket handling: prompt, always, or never")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Usage = printUsage
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fmt.Fprintln(os.Stderr, "Required environment variables:")
		fmt.Fprintln(os.Stderr, "  ZENDESK_EMAIL     Zendesk account email")
		fmt.Fprintln(os.Stderr, "  ZENDESK_PASSWORD  Zendesk password or API token")
		fmt.Fprintln(os.Stderr, "  OPENAI_API_KEY    OpenAI API key")
		fmt.Fprintln(os.Stderr, "  ZENDESK_DOMAIN    Zendesk domain (optional, default "+config.DefaultDomain+")")
		os.Exit(1)
	}

	policy, err := parseClosedPolicy(*processClosed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	stdin := bufio.NewReader(os.Stdin)
	opts := pipeline.Options{
		PostSummaries: !*noPost,
		SkipExisting:  *skipExisting,
		ClosedTickets: policy,
		Confirm:       func(ticketID string) bool { return confirmClosedTicket(stdin) },
	}

	var refs []string
	if flag.NArg() > 0 {
		refs = flag.Args()
	} else {
		refs = interactiveSetup(stdin, &opts)
	}

	ids, invalid := pipeline.ExtractTicketIDs(refs)
	for _, raw := range invalid {
		fmt.Printf("Warning: Could not extract ticket ID from: %s\n", raw)
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "Error: No valid ticket IDs found.")
		os.Exit(1)
	}

	artifacts, err := cache.New(cfg.WorkDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	zd := zendesk.NewClient(cfg.ZendeskDomain, cfg.ZendeskEmail, cfg.ZendeskPassword)
	oa := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithWhisperModel(cfg.WhisperModel),
		openai.WithChatModel(cfg.ChatModel),
	)

	runner := &pipeline.Runner{
		Pipeline: &pipeline.Pipeline{
			Tickets:     zd,
			Transcriber: oa,
			Summarizer:  summary.New(oa),
			Cache:       artifacts,
			Logger:      logger,
			Out:         os.Stdout,
			Options:     opts,
		},
		Logger: logger,
		Out:    os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("\nZendesk Voice Recording Processor")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Tickets to process: %d\n", len(ids))
	fmt.Printf("Post summaries: %s\n", yesNo(opts.PostSummaries))
	fmt.Printf("Skip existing: %s\n", yesNo(opts.SkipExisting))
	fmt.Println(strings.Repeat("=", 60))

	runner.Run(ctx, ids)

	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "\nProcess interrupted")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: callscribe [flags] [ticket ...]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Tickets may be numbers or agent URLs. With no tickets, callscribe")
	fmt.Fprintln(os.Stderr, "prompts for them interactively.")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "  callscribe 12345")
	fmt.Fprintln(os.Stderr, "  callscribe 12345 12346 12347")
	fmt.Fprintln(os.Stderr, "  callscribe -no-post 12345")
	fmt.Fprintln(os.Stderr, "  callscribe https://yourcompany.zendesk.com/agent/tickets/12345")
}

func parseClosedPolicy(s string) (pipeline.ClosedTicketPolicy, error) {
	switch s {
	case "prompt":
		return pipeline.ClosedPrompt, nil
	case "always":
		return pipeline.ClosedAlways, nil
	case "never":
		return pipeline.ClosedNever, nil
	default:
		return "", fmt.Errorf("invalid -process-closed value %q (want prompt, always, or never)", s)
	}
}

// interactiveSetup collects ticket references and run options from the
// operator. Entry ends on a blank line once at least one reference exists.
func interactiveSetup(stdin *bufio.Reader, opts *pipeline.Options) []string {
	fmt.Println("\nZendesk Voice Recording Processor - Interactive Mode")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("\nEnter ticket numbers or URLs (comma-separated or one per line)")
	fmt.Println("Press Enter twice when done:")

	var refs []string
	for {
		line, err := stdin.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			if len(refs) > 0 || err != nil {
				break
			}
			continue
		}
		for _, part := range strings.Split(line, ",") {
			if part = strings.TrimSpace(part); part != "" {
				refs = append(refs, part)
			}
		}
		if err != nil {
			break
		}
	}
	if len(refs) == 0 {
		return nil
	}

	opts.PostSummaries = askYesNo(stdin, "\nPost summaries to the ticket? (y/n) [default: y]: ", true)
	opts.SkipExisting = askYesNo(stdin, "Skip recordings with existing transcripts? (y/n) [default: n]: ", false)

	fmt.Printf("\nProcessing %d ticket(s)\n", len(refs))
	fmt.Printf("   Post summaries: %s\n", yesNo(opts.PostSummaries))
	fmt.Printf("   Skip existing: %s\n", yesNo(opts.SkipExisting))
	fmt.Print("\nPress Enter to continue or Ctrl+C to cancel...")
	stdin.ReadString('\n')

	return refs
}

func askYesNo(stdin *bufio.Reader, prompt string, def bool) bool {
	fmt.Print(prompt)
	line, _ := stdin.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

// confirmClosedTicket asks until the operator answers yes or no.
func confirmClosedTicket(stdin *bufio.Reader) bool {
	for {
		fmt.Print("\n   Do you still want to process the voice recordings? (y/n): ")
		line, err := stdin.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		if err != nil {
			return false
		}
		fmt.Println("   Please enter 'y' for yes or 'n' for no.")
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
