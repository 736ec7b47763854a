// Package zendesk wraps the Zendesk ticket API operations callscribe needs:
// ticket metadata, voice-comment enumeration, recording download, and
// private-note posting.
package zendesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/callscribe-io/callscribe/internal/retry"
	"github.com/callscribe-io/callscribe/pkg/voicecall"
)

// RemoteError is a ticketing-service failure that survived retry
// exhaustion. StatusCode is zero for transport-level failures.
type RemoteError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("zendesk: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("zendesk: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Client talks to one Zendesk instance using basic auth.
type Client struct {
	client   *http.Client
	baseURL  string
	email    string
	password string
	policy   retry.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(z *Client) { z.client = c }
}

// WithBaseURL overrides the API base URL. Intended for tests.
func WithBaseURL(url string) Option {
	return func(z *Client) { z.baseURL = url }
}

// WithRetryPolicy overrides the retry policy applied to every remote call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(z *Client) { z.policy = p }
}

// NewClient creates a client for the given Zendesk domain.
func NewClient(domain, email, password string, opts ...Option) *Client {
	z := &Client{
		client:   &http.Client{Timeout: 120 * time.Second},
		baseURL:  "https://" + domain,
		email:    email,
		password: password,
		policy:   retry.Default(),
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Ticket fetches ticket metadata and resolves requester/assignee display
// names. Names missing from the sideloaded users are looked up per user;
// anything still unresolved falls back to "Customer" / "Agent".
func (z *Client) Ticket(ctx context.Context, ticketID string) (voicecall.TicketContext, error) {
	return retry.Do(ctx, z.policy, func(ctx context.Context) (voicecall.TicketContext, error) {
		return z.ticket(ctx, ticketID)
	})
}

func (z *Client) ticket(ctx context.Context, ticketID string) (voicecall.TicketContext, error) {
	var tctx voicecall.TicketContext

	url := fmt.Sprintf("%s/api/v2/tickets/%s.json?include=users", z.baseURL, ticketID)
	var resp ticketResponse
	if err := z.getJSON(ctx, "get ticket", url, &resp); err != nil {
		return tctx, err
	}

	users := make(map[int64]string, len(resp.Users))
	for _, u := range resp.Users {
		users[u.ID] = u.Name
	}

	// Sideloading can come back empty; fall back to per-user lookups.
	if len(resp.Users) == 0 {
		for _, id := range []int64{resp.Ticket.RequesterID, resp.Ticket.AssigneeID} {
			if id == 0 {
				continue
			}
			var uresp userResponse
			url := fmt.Sprintf("%s/api/v2/users/%d.json", z.baseURL, id)
			if err := z.getJSON(ctx, "get user", url, &uresp); err != nil {
				return tctx, err
			}
			users[uresp.User.ID] = uresp.User.Name
		}
	}

	tctx = voicecall.TicketContext{
		Requester:   "Customer",
		Assignee:    "Agent",
		Subject:     resp.Ticket.Subject,
		Description: resp.Ticket.Description,
		Status:      voicecall.TicketStatus(resp.Ticket.Status),
	}
	if name, ok := users[resp.Ticket.RequesterID]; ok && name != "" {
		tctx.Requester = name
	}
	if name, ok := users[resp.Ticket.AssigneeID]; ok && name != "" {
		tctx.Assignee = name
	}
	return tctx, nil
}

// VoiceRecordings returns every recorded voice comment on the ticket with a
// usable recording URL. No qualifying comments is an empty slice, not an
// error.
func (z *Client) VoiceRecordings(ctx context.Context, ticketID string) ([]voicecall.Recording, error) {
	return retry.Do(ctx, z.policy, func(ctx context.Context) ([]voicecall.Recording, error) {
		return z.voiceRecordings(ctx, ticketID)
	})
}

func (z *Client) voiceRecordings(ctx context.Context, ticketID string) ([]voicecall.Recording, error) {
	url := fmt.Sprintf("%s/api/v2/tickets/%s/comments.json", z.baseURL, ticketID)
	var resp commentsResponse
	if err := z.getJSON(ctx, "get comments", url, &resp); err != nil {
		return nil, err
	}

	var recordings []voicecall.Recording
	for _, c := range resp.Comments {
		if c.Type != "VoiceComment" {
			continue
		}
		if !c.Data.Recorded || c.Data.RecordingURL == "" {
			continue
		}
		recordings = append(recordings, voicecall.Recording{
			CallID:       strconv.FormatInt(c.Data.CallID, 10),
			RecordingURL: c.Data.RecordingURL,
			From:         c.Data.From,
			To:           c.Data.To,
			Duration:     c.Data.CallDuration,
			StartedAt:    c.Data.StartedAt,
			CommentID:    c.ID,
		})
	}
	return recordings, nil
}

// DownloadRecording streams the recording at url into dest under
// authenticated access, reporting byte progress through the callback after
// every chunk. total is zero when the server does not send a Content-Length.
func (z *Client) DownloadRecording(ctx context.Context, url, dest string, progress func(done, total int64)) error {
	return retry.DoFunc(ctx, z.policy, func(ctx context.Context) error {
		return z.downloadRecording(ctx, url, dest, progress)
	})
}

func (z *Client) downloadRecording(ctx context.Context, url, dest string, progress func(done, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &RemoteError{Op: "download recording", Err: err}
	}
	req.SetBasicAuth(z.email, z.password)

	resp, err := z.client.Do(req)
	if err != nil {
		return &RemoteError{Op: "download recording", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RemoteError{Op: "download recording", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", body)}
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("zendesk: create %s: %w", dest, err)
	}
	defer f.Close()

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var done int64
	buf := make([]byte, 8192)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("zendesk: write %s: %w", dest, werr)
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return &RemoteError{Op: "download recording", Err: rerr}
		}
	}
	return nil
}

// AddPrivateNote appends a non-public markdown comment to the ticket. The
// caller decides what failure means; the pipeline falls back to console
// display rather than aborting.
func (z *Client) AddPrivateNote(ctx context.Context, ticketID, body string) error {
	return retry.DoFunc(ctx, z.policy, func(ctx context.Context) error {
		return z.addPrivateNote(ctx, ticketID, body)
	})
}

func (z *Client) addPrivateNote(ctx context.Context, ticketID, body string) error {
	payload, err := json.Marshal(noteRequest{
		Ticket: noteTicket{Comment: noteComment{Body: body, Public: false}},
	})
	if err != nil {
		return fmt.Errorf("zendesk: marshal note: %w", err)
	}

	url := fmt.Sprintf("%s/api/v2/tickets/%s.json", z.baseURL, ticketID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return &RemoteError{Op: "add note", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(z.email, z.password)

	resp, err := z.client.Do(req)
	if err != nil {
		return &RemoteError{Op: "add note", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RemoteError{Op: "add note", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", respBody)}
	}
	return nil
}

func (z *Client) getJSON(ctx context.Context, op, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}
	req.SetBasicAuth(z.email, z.password)

	resp, err := z.client.Do(req)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &RemoteError{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return nil
}

// --- Zendesk wire format types ---

type ticketResponse struct {
	Ticket ticketPayload `json:"ticket"`
	Users  []userPayload `json:"users"`
}

type ticketPayload struct {
	RequesterID int64  `json:"requester_id"`
	AssigneeID  int64  `json:"assignee_id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type userPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type userResponse struct {
	User userPayload `json:"user"`
}

type commentsResponse struct {
	Comments []commentPayload `json:"comments"`
}

type commentPayload struct {
	ID   int64        `json:"id"`
	Type string       `json:"type"`
	Data voicePayload `json:"data"`
}

type voicePayload struct {
	CallID       int64  `json:"call_id"`
	Recorded     bool   `json:"recorded"`
	RecordingURL string `json:"recording_url"`
	From         string `json:"from"`
	To           string `json:"to"`
	CallDuration int    `json:"call_duration"`
	StartedAt    string `json:"started_at"`
}

type noteRequest struct {
	Ticket noteTicket `json:"ticket"`
}

type noteTicket struct {
	Comment noteComment `json:"comment"`
}

type noteComment struct {
	Body   string `json:"body"`
	Public bool   `json:"public"`
}
