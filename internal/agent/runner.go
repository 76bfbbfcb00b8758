package agent

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mailpilot/agent/internal/classify"
	"github.com/mailpilot/agent/internal/database/models"
	"github.com/mailpilot/agent/internal/mailbox"
)

// previewLength bounds the reply excerpt stored in the action log
const previewLength = 50

// ReplyGenerator drafts a reply for a classified message. It must not fail:
// implementations degrade to canned text instead of returning errors.
type ReplyGenerator interface {
	GenerateReply(body string, intent classify.Intent, strategy, senderName, apiKey string) string
}

// ActionEntry records what happened to one message during a cycle
type ActionEntry struct {
	Subject      string
	Sender       string
	Intent       classify.Intent
	Confidence   float64
	Action       models.ActionOutcome
	ReplyPreview string
	Detail       string
	Timestamp    time.Time
}

// Runner executes one fetch-classify-reply-send pass over one account
type Runner struct {
	gateway    mailbox.Gateway
	classifier *classify.Classifier
	generator  ReplyGenerator
	fetchLimit int
}

// NewRunner creates a cycle runner
func NewRunner(gateway mailbox.Gateway, classifier *classify.Classifier, generator ReplyGenerator, fetchLimit int) *Runner {
	return &Runner{
		gateway:    gateway,
		classifier: classifier,
		generator:  generator,
		fetchLimit: fetchLimit,
	}
}

// RunCycle processes the account's unseen messages in fetch order (most
// recent first) and returns the ordered action log plus the completion
// timestamp. A fetch failure aborts the whole cycle with a single error;
// failures on individual messages are mapped to log outcomes and never
// abort the batch.
func (r *Runner) RunCycle(account *models.Account, password, apiKey string) ([]ActionEntry, time.Time, error) {
	messages, err := r.gateway.FetchUnseen(account, password, r.fetchLimit)
	if err != nil {
		log.Printf("[Agent] Cycle for %s failed: %v", account.Email, err)
		return nil, time.Now(), err
	}

	var entries []ActionEntry
	for i := range messages {
		if entry, ok := r.processMessage(account, password, apiKey, &messages[i]); ok {
			entries = append(entries, entry)
		}
	}

	completedAt := time.Now()
	log.Printf("[Agent] Cycle for %s completed: %d messages, %d actions", account.Email, len(messages), len(entries))
	return entries, completedAt, nil
}

// processMessage runs the pipeline for one message. The second return value
// is false when the message is silently skipped (empty body). A panic in any
// step is confined to this message so one malformed email cannot take down
// the batch.
func (r *Runner) processMessage(account *models.Account, password, apiKey string, msg *mailbox.Message) (entry ActionEntry, ok bool) {
	entry = ActionEntry{
		Subject:   msg.Subject,
		Sender:    msg.SenderAddress,
		Timestamp: time.Now(),
	}
	ok = true

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Agent] Recovered while processing %q from %s: %v", msg.Subject, msg.SenderAddress, rec)
			entry.Action = models.ActionSkipped
			entry.Detail = fmt.Sprintf("processing fault: %v", rec)
			ok = true
		}
	}()

	// No-reply senders are filtered before any classification
	if r.classifier.IsNoReply(msg.SenderAddress) {
		entry.Action = models.ActionIgnoredNoReply
		return entry, true
	}

	body := strings.TrimSpace(msg.Body)
	if body == "" {
		body = classify.NormalizeBody(msg.HTMLBody)
	}
	if body == "" {
		// Nothing to work with; not worth a log entry
		return entry, false
	}

	result := r.classifier.Classify(body, msg.SenderAddress)
	entry.Intent = result.Intent
	entry.Confidence = result.Confidence

	if !result.Intent.NeedsReply() {
		entry.Action = models.ActionIgnoredPromotional
		return entry, true
	}

	strategy := classify.StrategyFor(result.Intent)
	senderName := msg.SenderName
	if senderName == "" {
		senderName = "there"
	}

	reply := r.generator.GenerateReply(body, result.Intent, strategy, senderName, apiKey)

	if r.gateway.SendReply(account, password, msg.SenderAddress, msg.Subject, reply) {
		entry.Action = models.ActionReplied
		entry.ReplyPreview = previewOf(reply)
	} else {
		entry.Action = models.ActionSendFailed
	}

	return entry, true
}

// previewOf returns a fixed-length excerpt of the reply for the action log
func previewOf(reply string) string {
	if len(reply) <= previewLength {
		return reply
	}
	return reply[:previewLength] + "..."
}
