package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mailpilot/agent/internal/classify"
)

var (
	// ErrNotConfigured indicates no API key was provided
	ErrNotConfigured = errors.New("LLM client not configured")
	// ErrAPICallFailed indicates the completion API call failed
	ErrAPICallFailed = errors.New("LLM API call failed")
	// ErrInvalidResponse indicates an unparsable response from the API
	ErrInvalidResponse = errors.New("invalid LLM API response")
)

const (
	// MaxBodyPreview bounds how much of the email body is sent to the model,
	// keeping latency and cost in check.
	MaxBodyPreview = 600

	// replyTemperature keeps the drafted replies close to deterministic
	replyTemperature = 0.1
)

// Canned fallback texts used whenever the remote model is unavailable or its
// output is unusable. The agent favors having some reply over having none.
const (
	FallbackReply = "Thank you for your response. Please let us know how you would like to proceed. Best regards, AI Agent"
	DefaultReply  = "Thank you for your email."
)

// Client handles chat-completion API communication for reply drafting
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a new LLM client for the given endpoint and model
func NewClient(baseURL, model string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ChatMessage represents a message in a chat conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// sendChatRequest sends a chat completion request and returns the first
// choice's message content.
func (c *Client) sendChatRequest(messages []ChatMessage, apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrNotConfigured
	}

	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: replyTemperature,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	// OpenRouter attribution headers
	req.Header.Set("HTTP-Referer", "https://localhost")
	req.Header.Set("X-Title", "Mail Pilot")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrAPICallFailed, resp.StatusCode, string(respBody))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrAPICallFailed, chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", ErrInvalidResponse
	}

	return chatResp.Choices[0].Message.Content, nil
}

// GenerateReply drafts a reply for an email. It never returns an error: any
// transport or parse failure yields a canned acknowledgment instead, because
// the agent favors availability of output over correctness of content.
func (c *Client) GenerateReply(body string, intent classify.Intent, strategy, senderName, apiKey string) string {
	systemPrompt := fmt.Sprintf(
		"You are a professional email assistant. "+
			"The email intent is '%s'. "+
			"Strategy: %s. "+
			"INSTRUCTIONS:\n"+
			"1. Analyze the email body provided below to understand the specific context.\n"+
			"2. Address the recipient as '%s' (or 'there' if name is unknown).\n"+
			"3. Draft a response that directly addresses the points raised in the body.\n"+
			"4. DO NOT invent specific dates, times, or meeting slots. Instead, ask the recipient for their availability or propose 'a convenient time'.\n"+
			"5. Keep it short, professional, and enterprise-style.\n"+
			"Tone: formal, concise, neutral. "+
			"Do NOT include Subject lines. "+
			"Sign off as 'AI Agent'. "+
			"If the input is very short (like 'yea' or 'ok'), assume it confirms the previous topic and ask for next steps politely.",
		intent, strategy, senderName)

	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "Incoming Email Body:\n" + truncate(body, MaxBodyPreview) + "\n\nDraft a reply:"},
	}

	response, err := c.sendChatRequest(messages, apiKey)
	if err != nil {
		return FallbackReply
	}

	return cleanReply(response)
}

// cleanReply post-processes model output: trims whitespace, removes stray
// end-of-sequence markers, strips a single pair of wrapping quotes, and
// substitutes a default text when nothing usable remains.
func cleanReply(content string) string {
	content = strings.TrimSpace(content)
	content = strings.ReplaceAll(content, "<s>", "")
	content = strings.ReplaceAll(content, "</s>", "")
	content = strings.TrimSpace(content)

	if len(content) >= 2 && strings.HasPrefix(content, `"`) && strings.HasSuffix(content, `"`) {
		content = content[1 : len(content)-1]
	}

	if content == "" {
		return DefaultReply
	}
	return content
}

// ClassifyIntent classifies an email with the remote model, as an alternative
// to the keyword classifier. A malformed or missing response degrades to
// General with zero confidence rather than failing the pipeline.
func (c *Client) ClassifyIntent(body, apiKey string) classify.Classification {
	systemPrompt := "You are an email classifier. Your goal is to filter out spam and automated emails. " +
		"Classify the email into exactly one category: " +
		"'Meeting Request', 'Support Query', 'Information Request', 'Promotional/Notification', 'General'. " +
		"\nRULES:\n" +
		"1. Use 'Promotional/Notification' for ALL newsletters, marketing, automated welcome emails, 'Get Started' guides, status updates, and system alerts. If no human action is explicitly requested, it is Promotional.\n" +
		"2. Use 'General' ONLY if it appears to be a personal email from a human that requires a reply but fits no other category.\n" +
		"3. Output ONLY valid JSON: {\"intent\": \"<Category>\", \"confidence\": <0.0-1.0>}"

	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: truncate(body, MaxBodyPreview)},
	}

	fallback := classify.Classification{Intent: classify.IntentGeneral, Confidence: 0.0}

	response, err := c.sendChatRequest(messages, apiKey)
	if err != nil {
		log.Printf("[LLM] intent classification failed, defaulting to General: %v", err)
		return fallback
	}

	// Models sometimes fence the JSON in markdown
	cleaned := strings.ReplaceAll(response, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var result classify.Classification
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil || !result.Intent.IsValid() {
		log.Printf("[LLM] unparsable classification %q, defaulting to General", response)
		return fallback
	}

	return result
}

// truncate bounds s to at most n bytes
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
