package nlu

import (
	"context"
	"log"
	"strings"

	"github.com/tidwall/gjson"
)

type Intent string

const (
	IntentCreateEvent Intent = "create_event"
	IntentListEvents  Intent = "list_events"
	IntentDeleteEvent Intent = "delete_event"
	IntentUpdateEvent Intent = "update_event"
	IntentGreeting    Intent = "greeting"
	IntentThanks      Intent = "thanks"
	IntentOther       Intent = "other"
)

type IntentResult struct {
	Intent     Intent
	Confidence float64
}

// Completer is the NL classifier collaborator: one prompt in, one raw text
// completion out. Tests inject deterministic fakes returning canned JSON.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Classifier struct {
	llm Completer
}

func NewClassifier(llm Completer) *Classifier {
	return &Classifier{llm: llm}
}

const intentPromptTemplate = `You are an intent classifier for a calendar assistant.
Classify the user message into exactly one intent:
- create_event: schedule or book a meeting or event
- list_events: show or read upcoming events
- delete_event: cancel or remove one or more events
- update_event: postpone, prepone or move one or more events
- greeting: a greeting with no request
- thanks: gratitude or closing the conversation
- other: anything else

Respond with strict JSON only, no prose:
{"intent": "<one of the above>", "confidence": <0.0-1.0>}

User message: `

// ClassifyIntent maps the utterance to one of the fixed intents. Any failure,
// from the transport up to unparseable output, degrades to {other, 0} so the
// turn never crashes.
func (c *Classifier) ClassifyIntent(ctx context.Context, utterance string) IntentResult {
	fallback := IntentResult{Intent: IntentOther, Confidence: 0}

	raw, err := c.llm.Complete(ctx, intentPromptTemplate+utterance)
	if err != nil {
		log.Printf("[NLU] Intent classification unavailable: %v", err)
		return fallback
	}

	payload := StripFences(raw)
	if !gjson.Valid(payload) {
		log.Printf("[NLU] Unparseable intent output: %q", truncate(raw, 200))
		return fallback
	}

	intent, ok := normalizeIntent(gjson.Get(payload, "intent").String())
	if !ok {
		return fallback
	}
	confidence := gjson.Get(payload, "confidence").Float()
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return IntentResult{Intent: intent, Confidence: confidence}
}

func normalizeIntent(raw string) (Intent, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	switch Intent(cleaned) {
	case IntentCreateEvent, IntentListEvents, IntentDeleteEvent, IntentUpdateEvent, IntentGreeting, IntentThanks, IntentOther:
		return Intent(cleaned), true
	}
	switch cleaned {
	case "createevent", "create", "schedule":
		return IntentCreateEvent, true
	case "listevents", "list":
		return IntentListEvents, true
	case "deleteevent", "delete", "cancel":
		return IntentDeleteEvent, true
	case "updateevent", "update", "reschedule":
		return IntentUpdateEvent, true
	}
	return IntentOther, false
}

// StripFences removes markdown code fences some models wrap JSON in.
func StripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
