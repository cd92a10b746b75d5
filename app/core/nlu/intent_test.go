package nlu

import (
	"context"
	"errors"
	"testing"
)

// fakeCompleter returns a canned completion, or an error, and records the
// last prompt it was given.
type fakeCompleter struct {
	reply      string
	err        error
	lastPrompt string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.reply, f.err
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name           string
		reply          string
		err            error
		wantIntent     Intent
		wantConfidence float64
	}{
		{
			name:           "clean json",
			reply:          `{"intent": "create_event", "confidence": 0.92}`,
			wantIntent:     IntentCreateEvent,
			wantConfidence: 0.92,
		},
		{
			name:           "fenced json",
			reply:          "```json\n{\"intent\": \"delete_event\", \"confidence\": 0.8}\n```",
			wantIntent:     IntentDeleteEvent,
			wantConfidence: 0.8,
		},
		{
			name:           "aliased intent",
			reply:          `{"intent": "reschedule", "confidence": 0.7}`,
			wantIntent:     IntentUpdateEvent,
			wantConfidence: 0.7,
		},
		{
			name:           "confidence clamped high",
			reply:          `{"intent": "list_events", "confidence": 7}`,
			wantIntent:     IntentListEvents,
			wantConfidence: 1,
		},
		{
			name:           "transport error falls back",
			reply:          "",
			err:            errors.New("connection refused"),
			wantIntent:     IntentOther,
			wantConfidence: 0,
		},
		{
			name:           "garbage output falls back",
			reply:          "I think the user wants to schedule something",
			wantIntent:     IntentOther,
			wantConfidence: 0,
		},
		{
			name:           "unknown intent falls back",
			reply:          `{"intent": "order_pizza", "confidence": 0.99}`,
			wantIntent:     IntentOther,
			wantConfidence: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&fakeCompleter{reply: tt.reply, err: tt.err})
			got := c.ClassifyIntent(context.Background(), "whatever the user said")
			if got.Intent != tt.wantIntent {
				t.Fatalf("intent = %q, want %q", got.Intent, tt.wantIntent)
			}
			if got.Confidence != tt.wantConfidence {
				t.Fatalf("confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestClassifyIntentPromptCarriesUtterance(t *testing.T) {
	fake := &fakeCompleter{reply: `{"intent": "greeting", "confidence": 1}`}
	c := NewClassifier(fake)
	c.ClassifyIntent(context.Background(), "hello there")
	if fake.lastPrompt == "" || fake.lastPrompt[len(fake.lastPrompt)-len("hello there"):] != "hello there" {
		t.Fatalf("prompt does not end with utterance: %q", fake.lastPrompt)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Fatalf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
