package agent

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mailpilot/agent/internal/classify"
	"github.com/mailpilot/agent/internal/database/models"
	"github.com/mailpilot/agent/internal/llm"
	"github.com/mailpilot/agent/internal/mailbox"
)

// fakeGateway returns scripted messages and records send attempts
type fakeGateway struct {
	messages  []mailbox.Message
	fetchErr  error
	sendOK    bool
	sent      []sentReply
	loginErr  error
	lastLimit int
}

type sentReply struct {
	to      string
	subject string
	body    string
}

func (f *fakeGateway) FetchUnseen(account *models.Account, password string, limit int) ([]mailbox.Message, error) {
	f.lastLimit = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.messages, nil
}

func (f *fakeGateway) SendReply(account *models.Account, password, to, origSubject, body string) bool {
	f.sent = append(f.sent, sentReply{to: to, subject: origSubject, body: body})
	return f.sendOK
}

func (f *fakeGateway) CheckLogin(account *models.Account, password string) error {
	return f.loginErr
}

// fakeGenerator returns a fixed reply, optionally panicking to exercise
// per-message fault isolation
type fakeGenerator struct {
	reply string
	panic bool
}

func (f *fakeGenerator) GenerateReply(body string, intent classify.Intent, strategy, senderName, apiKey string) string {
	if f.panic {
		panic("generator exploded")
	}
	return f.reply
}

func testAccount() *models.Account {
	return &models.Account{
		ID:    1,
		Email: "owner@example.com",
	}
}

func newTestRunner(gateway *fakeGateway, generator ReplyGenerator) *Runner {
	return NewRunner(gateway, classify.NewClassifier(classify.Ruleset{}), generator, 10)
}

func TestRunCycleFetchFailureAborts(t *testing.T) {
	gateway := &fakeGateway{fetchErr: errors.New("connection refused")}
	runner := newTestRunner(gateway, &fakeGenerator{reply: "ok"})

	entries, _, err := runner.RunCycle(testAccount(), "pw", "key")
	if err == nil {
		t.Fatal("expected error when fetch fails")
	}
	if entries != nil {
		t.Errorf("expected no entries on fetch failure, got %d", len(entries))
	}
}

func TestRunCycleOutcomes(t *testing.T) {
	gateway := &fakeGateway{
		sendOK: true,
		messages: []mailbox.Message{
			{Subject: "Weekly digest", SenderAddress: "noreply@news.example.com", Body: "Join our zoom meeting next week"},
			{Subject: "50% off", SenderAddress: "deals@shop.example.com", Body: "Huge discount, buy now"},
			{Subject: "Sync up", SenderAddress: "bob@example.com", SenderName: "Bob", Body: "Can we schedule a zoom call?"},
			{Subject: "(empty)", SenderAddress: "carol@example.com", Body: "   "},
		},
	}
	runner := newTestRunner(gateway, &fakeGenerator{reply: "Happy to meet. AI Agent"})

	entries, _, err := runner.RunCycle(testAccount(), "pw", "key")
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	// The empty-body message is silently dropped
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	if entries[0].Action != models.ActionIgnoredNoReply {
		t.Errorf("no-reply sender action = %q, want %q", entries[0].Action, models.ActionIgnoredNoReply)
	}
	// No classification runs for no-reply senders
	if entries[0].Intent != "" {
		t.Errorf("no-reply entry has intent %q, want none", entries[0].Intent)
	}

	if entries[1].Action != models.ActionIgnoredPromotional {
		t.Errorf("promotional action = %q, want %q", entries[1].Action, models.ActionIgnoredPromotional)
	}
	if entries[1].Intent != classify.IntentPromotional {
		t.Errorf("promotional intent = %q", entries[1].Intent)
	}

	if entries[2].Action != models.ActionReplied {
		t.Errorf("meeting action = %q, want %q", entries[2].Action, models.ActionReplied)
	}
	if entries[2].Intent != classify.IntentMeeting {
		t.Errorf("meeting intent = %q", entries[2].Intent)
	}
	if entries[2].ReplyPreview == "" {
		t.Error("replied entry is missing its reply preview")
	}

	// Exactly one message produced a send
	if len(gateway.sent) != 1 {
		t.Fatalf("got %d sends, want 1", len(gateway.sent))
	}
	if gateway.sent[0].to != "bob@example.com" {
		t.Errorf("reply sent to %q", gateway.sent[0].to)
	}
}

func TestRunCycleSendFailureDoesNotAbortBatch(t *testing.T) {
	gateway := &fakeGateway{
		sendOK: false,
		messages: []mailbox.Message{
			{Subject: "First", SenderAddress: "a@example.com", Body: "I have a problem with my account"},
			{Subject: "Second", SenderAddress: "b@example.com", Body: "Quick question about the report"},
		},
	}
	runner := newTestRunner(gateway, &fakeGenerator{reply: "On it. AI Agent"})

	entries, _, err := runner.RunCycle(testAccount(), "pw", "key")
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for i, entry := range entries {
		if entry.Action != models.ActionSendFailed {
			t.Errorf("entry %d action = %q, want %q", i, entry.Action, models.ActionSendFailed)
		}
		if entry.ReplyPreview != "" {
			t.Errorf("entry %d has a preview despite failed send", i)
		}
	}
	// Both sends were attempted
	if len(gateway.sent) != 2 {
		t.Errorf("got %d send attempts, want 2", len(gateway.sent))
	}
}

func TestRunCyclePanicIsConfinedToOneMessage(t *testing.T) {
	gateway := &fakeGateway{
		sendOK: true,
		messages: []mailbox.Message{
			{Subject: "Poison", SenderAddress: "a@example.com", Body: "Quick question"},
		},
	}
	runner := newTestRunner(gateway, &fakeGenerator{panic: true})

	entries, _, err := runner.RunCycle(testAccount(), "pw", "key")
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Action != models.ActionSkipped {
		t.Errorf("panicked entry action = %q, want %q", entries[0].Action, models.ActionSkipped)
	}
	if !strings.Contains(entries[0].Detail, "processing fault") {
		t.Errorf("panicked entry detail = %q", entries[0].Detail)
	}
}

func TestRunCycleFallsBackToHTMLBody(t *testing.T) {
	gateway := &fakeGateway{
		sendOK: true,
		messages: []mailbox.Message{
			{
				Subject:       "HTML only",
				SenderAddress: "dave@example.com",
				HTMLBody:      "<p>Can you <b>help</b> with this error?</p>",
			},
		},
	}
	runner := newTestRunner(gateway, &fakeGenerator{reply: "Looking into it. AI Agent"})

	entries, _, err := runner.RunCycle(testAccount(), "pw", "key")
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Intent != classify.IntentSupport {
		t.Errorf("intent = %q, want Support Query", entries[0].Intent)
	}
	if entries[0].Action != models.ActionReplied {
		t.Errorf("action = %q, want %q", entries[0].Action, models.ActionReplied)
	}
}

// End to end: a meeting request flows through the real drafting client backed
// by a local chat-completions server.
func TestRunCycleWithDraftingClient(t *testing.T) {
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"id": "gen-1",
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": "Happy to meet. Could you share your availability? AI Agent",
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer llmServer.Close()

	gateway := &fakeGateway{
		sendOK: true,
		messages: []mailbox.Message{
			{Subject: "Sync up", SenderAddress: "bob@example.com", SenderName: "Bob", Body: "Can we schedule a zoom call?"},
		},
	}
	generator := llm.NewClient(llmServer.URL, "test-model")
	runner := NewRunner(gateway, classify.NewClassifier(classify.Ruleset{}), generator, 10)

	entries, _, err := runner.RunCycle(testAccount(), "pw", "sk-key")
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Intent != classify.IntentMeeting || entries[0].Action != models.ActionReplied {
		t.Errorf("entry = %+v", entries[0])
	}
	if !strings.HasPrefix(entries[0].ReplyPreview, "Happy to meet.") {
		t.Errorf("preview = %q", entries[0].ReplyPreview)
	}
	if len(gateway.sent) != 1 || !strings.Contains(gateway.sent[0].body, "availability") {
		t.Errorf("sent = %+v", gateway.sent)
	}
}

func TestPreviewOf(t *testing.T) {
	short := "Short reply"
	if got := previewOf(short); got != short {
		t.Errorf("previewOf(short) = %q", got)
	}

	long := strings.Repeat("x", previewLength+20)
	got := previewOf(long)
	if len(got) != previewLength+3 {
		t.Errorf("previewOf(long) length = %d, want %d", len(got), previewLength+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("previewOf(long) = %q, want ellipsis suffix", got)
	}
}
