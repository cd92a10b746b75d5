package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"calagent/app/core/calendar"
	"calagent/app/core/nlu"
	"calagent/app/core/store"
	"calagent/app/core/trace"
	"calagent/app/pkg/types"
)

type scriptedCompleter struct {
	replies []string
	calls   int
}

func (s *scriptedCompleter) Complete(_ context.Context, _ string) (string, error) {
	reply := ""
	if s.calls < len(s.replies) {
		reply = s.replies[s.calls]
	}
	s.calls++
	return reply, nil
}

type fakeClient struct {
	events  []calendar.Event
	created []calendar.Event
	deleted []string
}

func (f *fakeClient) Create(_ context.Context, ev calendar.Event) (calendar.Event, error) {
	ev.ID = "ev-1"
	f.created = append(f.created, ev)
	return ev, nil
}

func (f *fakeClient) List(_ context.Context, _ calendar.ListFilter) ([]calendar.Event, error) {
	return f.events, nil
}

func (f *fakeClient) Update(_ context.Context, _ string, ev calendar.Event) (calendar.Event, error) {
	return ev, nil
}

func (f *fakeClient) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeFactory struct {
	client *fakeClient
	err    error
}

func (f *fakeFactory) ClientFor(_ context.Context, _ string) (calendar.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type allowGate bool

func (g allowGate) HasCredential(_ context.Context, _ string) (bool, error) {
	return bool(g), nil
}

type captureRecorder struct {
	traces []trace.TurnTrace
}

func (c *captureRecorder) Record(_ context.Context, tr trace.TurnTrace) error {
	c.traces = append(c.traces, tr)
	return nil
}

type testHarness struct {
	agent    *DefaultAgent
	client   *fakeClient
	recorder *captureRecorder
	llm      *scriptedCompleter
}

func newTestHarness(t *testing.T, gate allowGate, llmReplies ...string) *testHarness {
	t.Helper()

	database, err := store.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	llm := &scriptedCompleter{replies: llmReplies}
	client := &fakeClient{}
	recorder := &captureRecorder{}

	executor := calendar.NewExecutor(&fakeFactory{client: client}, time.UTC, time.Hour, 50)
	a := NewAgent(
		"CalAgent",
		nlu.NewClassifier(llm),
		executor,
		store.NewSessionStore(database),
		gate,
		recorder,
		"http://localhost:10000",
	)
	a.now = func() time.Time {
		return time.Date(2025, time.September, 16, 10, 0, 0, 0, time.UTC)
	}
	return &testHarness{agent: a, client: client, recorder: recorder, llm: llm}
}

func userMsg(channel, user, content string) types.Message {
	return types.Message{
		ID:        "m1",
		Content:   content,
		Role:      types.MessageRoleUser,
		ChannelID: channel,
		UserID:    user,
		RequestID: "r1",
	}
}

func TestProcessUnauthenticatedGetsLoginPrompt(t *testing.T) {
	h := newTestHarness(t, allowGate(false))

	resp, err := h.agent.Process(context.Background(), userMsg("telegram", "tg-42", "schedule a meeting"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !strings.Contains(resp.Content, "http://localhost:10000/login?u=tg-42") {
		t.Fatalf("expected channel-scoped login link, got: %q", resp.Content)
	}
	if h.llm.calls != 0 {
		t.Fatal("classifier must not run for unauthenticated users")
	}
}

func TestProcessWebLoginPromptHasNoLinkUser(t *testing.T) {
	h := newTestHarness(t, allowGate(false))

	resp, err := h.agent.Process(context.Background(), userMsg("web", "u1", "hello"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if strings.Contains(resp.Content, "?u=") {
		t.Fatalf("web sessions should not carry a link user: %q", resp.Content)
	}
}

func TestProcessSingleTurnCreate(t *testing.T) {
	h := newTestHarness(t, allowGate(true), `{"intent": "create_event", "confidence": 0.95}`)

	resp, err := h.agent.Process(context.Background(), userMsg("web", "u1", "Schedule a meeting with Bob tomorrow at 3 PM"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !strings.Contains(resp.Content, `Done! I scheduled "Meeting with Bob"`) {
		t.Fatalf("unexpected reply: %q", resp.Content)
	}
	if len(h.client.created) != 1 {
		t.Fatalf("expected one created event, got %d", len(h.client.created))
	}
	wantStart := time.Date(2025, 9, 17, 15, 0, 0, 0, time.UTC)
	if !h.client.created[0].Start.Equal(wantStart) {
		t.Fatalf("start = %s, want %s", h.client.created[0].Start, wantStart)
	}
	if len(h.recorder.traces) != 1 || h.recorder.traces[0].Outcome != "created" {
		t.Fatalf("unexpected trace: %+v", h.recorder.traces)
	}
}

func TestProcessMultiTurnSkipsClassifierMidSession(t *testing.T) {
	h := newTestHarness(t, allowGate(true), `{"intent": "create_event", "confidence": 0.9}`)
	ctx := context.Background()

	first, err := h.agent.Process(ctx, userMsg("web", "u1", "Schedule a meeting"))
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	if !strings.Contains(first.Content, "Who is the meeting with") {
		t.Fatalf("expected clarifying question, got: %q", first.Content)
	}

	if _, err := h.agent.Process(ctx, userMsg("web", "u1", "Bob")); err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if _, err := h.agent.Process(ctx, userMsg("web", "u1", "tomorrow")); err != nil {
		t.Fatalf("third turn failed: %v", err)
	}
	final, err := h.agent.Process(ctx, userMsg("web", "u1", "3 PM"))
	if err != nil {
		t.Fatalf("final turn failed: %v", err)
	}
	if !strings.Contains(final.Content, "Done! I scheduled") {
		t.Fatalf("unexpected final reply: %q", final.Content)
	}

	// Only the opening turn should have hit the classifier.
	if h.llm.calls != 1 {
		t.Fatalf("classifier calls = %d, want 1", h.llm.calls)
	}

	// Completion cleared the session; a fresh turn classifies again.
	h.llm.replies = append(h.llm.replies, `{"intent": "greeting", "confidence": 1}`)
	resp, err := h.agent.Process(ctx, userMsg("web", "u1", "hi"))
	if err != nil {
		t.Fatalf("post-completion turn failed: %v", err)
	}
	if !strings.Contains(resp.Content, "Hi! I'm CalAgent") {
		t.Fatalf("expected greeting after completed session, got: %q", resp.Content)
	}
}

func TestProcessClassifierFailureGivesHelp(t *testing.T) {
	h := newTestHarness(t, allowGate(true), "absolute nonsense, not json")

	resp, err := h.agent.Process(context.Background(), userMsg("web", "u1", "do the thing"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if resp.Content != helpReply {
		t.Fatalf("expected help reply, got: %q", resp.Content)
	}
}

func TestProcessThanksClearsSession(t *testing.T) {
	h := newTestHarness(t, allowGate(true),
		`{"intent": "create_event", "confidence": 0.9}`,
		`{"intent": "create_event", "confidence": 0.9}`,
	)
	ctx := context.Background()

	if _, err := h.agent.Process(ctx, userMsg("web", "u1", "Schedule a meeting with Bob")); err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	// "thanks" is a reset phrase: the dialogue machine resets before the
	// classifier would even matter.
	resp, err := h.agent.Process(ctx, userMsg("web", "u1", "thanks"))
	if err != nil {
		t.Fatalf("thanks turn failed: %v", err)
	}
	if !strings.Contains(resp.Content, "cleared") {
		t.Fatalf("expected reset acknowledgement, got: %q", resp.Content)
	}

	resp, err = h.agent.Process(ctx, userMsg("web", "u1", "Schedule a meeting"))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if !strings.Contains(resp.Content, "Who is the meeting with") {
		t.Fatalf("expected fresh slot-filling session, got: %q", resp.Content)
	}
}

func TestProcessListEvents(t *testing.T) {
	h := newTestHarness(t, allowGate(true), `{"intent": "list_events", "confidence": 0.9}`)
	h.client.events = []calendar.Event{
		{ID: "a", Summary: "Meeting with Aman", Start: time.Date(2025, 9, 17, 14, 0, 0, 0, time.UTC)},
	}

	resp, err := h.agent.Process(context.Background(), userMsg("web", "u1", "what's on my calendar?"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !strings.Contains(resp.Content, "Meeting with Aman") {
		t.Fatalf("unexpected reply: %q", resp.Content)
	}
}

func TestProcessDeleteWithException(t *testing.T) {
	h := newTestHarness(t, allowGate(true),
		`{"intent": "delete_event", "confidence": 0.9}`,
		`{"kind": "all", "value": null, "exception": {"kind": "by_name", "value": "Aman"}}`,
	)
	h.client.events = []calendar.Event{
		{ID: "a", Summary: "Meeting with Aman", Start: time.Date(2025, 9, 17, 14, 0, 0, 0, time.UTC)},
		{ID: "b", Summary: "Meeting with Bob", Start: time.Date(2025, 9, 18, 14, 0, 0, 0, time.UTC)},
	}

	resp, err := h.agent.Process(context.Background(), userMsg("web", "u1", "cancel everything except the one with Aman"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !strings.Contains(resp.Content, "Cancelled 1 event(s), kept 1.") {
		t.Fatalf("unexpected reply: %q", resp.Content)
	}
	if len(h.client.deleted) != 1 || h.client.deleted[0] != "b" {
		t.Fatalf("unexpected deletions: %+v", h.client.deleted)
	}
}

func TestSlashCommands(t *testing.T) {
	h := newTestHarness(t, allowGate(false))

	// Slash commands run before the identity gate.
	resp, err := h.agent.Process(context.Background(), userMsg("web", "u1", "/help"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !strings.Contains(resp.Content, "/reset") {
		t.Fatalf("unexpected help output: %q", resp.Content)
	}

	resp, err = h.agent.Process(context.Background(), userMsg("telegram", "tg-42", "/login"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !strings.Contains(resp.Content, "/login?u=tg-42") {
		t.Fatalf("unexpected login output: %q", resp.Content)
	}
}
