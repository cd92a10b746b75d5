package agent

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"calagent/app/core/calendar"
	"calagent/app/core/command/slash"
	"calagent/app/core/dialogue"
	"calagent/app/core/nlu"
	"calagent/app/core/store"
	"calagent/app/core/trace"
	"calagent/app/pkg/types"
)

const helpReply = `I couldn't understand that. I can:
- schedule: "Schedule a meeting with Bob tomorrow at 3 PM"
- list: "What's on my calendar?"
- cancel: "Cancel all events except today's"
- move: "Postpone tomorrow's meetings by 2 hours"`

// CredentialGate reports whether a user has a usable stored credential.
// Unauthenticated users get a login prompt before the dialogue machine is
// ever touched.
type CredentialGate interface {
	HasCredential(ctx context.Context, userID string) (bool, error)
}

// DefaultAgent processes one chat turn end to end: identity gate, slash
// commands, intent classification, slot-filling, and calendar execution.
type DefaultAgent struct {
	name       string
	classifier *nlu.Classifier
	executor   *calendar.Executor
	sessions   *store.SessionStore
	gate       CredentialGate
	tracer     trace.Recorder
	command    *slash.Executor
	baseURL    string

	now func() time.Time
}

func NewAgent(name string, classifier *nlu.Classifier, executor *calendar.Executor, sessions *store.SessionStore, gate CredentialGate, tracer trace.Recorder, baseURL string) *DefaultAgent {
	a := &DefaultAgent{
		name:       name,
		classifier: classifier,
		executor:   executor,
		sessions:   sessions,
		gate:       gate,
		tracer:     tracer,
		command:    slash.NewExecutor(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}
	a.registerCommands()
	return a
}

func (a *DefaultAgent) Name() string {
	return a.name
}

func (a *DefaultAgent) Command() *slash.Executor {
	return a.command
}

// Process handles one turn. It always produces a user-facing reply; internal
// failures degrade to safe messages instead of propagating.
func (a *DefaultAgent) Process(ctx context.Context, msg types.Message) (types.Message, error) {
	msg.Content = strings.TrimSpace(msg.Content)
	msg.UserID = strings.TrimSpace(msg.UserID)
	if msg.Content == "" {
		return a.reply(msg, ""), nil
	}

	if strings.HasPrefix(msg.Content, "/") {
		out, handled, err := a.command.Execute(ctx, msg)
		if handled {
			if err != nil {
				return a.reply(msg, fmt.Sprintf("Command failed: %v", err)), nil
			}
			return a.reply(msg, out), nil
		}
	}

	if ok := a.authenticated(ctx, msg.UserID); !ok {
		return a.reply(msg, a.loginPrompt(msg)), nil
	}

	tr := trace.TurnTrace{
		UserID:    msg.UserID,
		ChannelID: msg.ChannelID,
		Utterance: msg.Content,
	}
	text := a.processUtterance(ctx, msg, &tr)
	a.record(ctx, tr)
	return a.reply(msg, text), nil
}

func (a *DefaultAgent) processUtterance(ctx context.Context, msg types.Message, tr *trace.TurnTrace) string {
	state, _, err := a.sessions.Load(ctx, msg.UserID)
	if err != nil {
		log.Printf("[Agent] Failed to load session for user=%s: %v", msg.UserID, err)
		state = dialogue.SlotState{}
	}

	// Mid slot-filling, every utterance goes straight to the extractors;
	// the classifier only runs between requests.
	if state.Active {
		tr.Intent = string(nlu.IntentCreateEvent)
		return a.stepDialogue(ctx, msg, state, tr)
	}

	result := a.classifier.ClassifyIntent(ctx, msg.Content)
	tr.Intent = string(result.Intent)
	tr.Confidence = result.Confidence

	switch result.Intent {
	case nlu.IntentGreeting:
		return fmt.Sprintf("Hi! I'm %s. I can schedule, list, cancel, or move events on your Google Calendar.", a.name)
	case nlu.IntentThanks:
		a.clearSession(ctx, msg.UserID)
		return "You're welcome! Let me know if you need anything else."
	case nlu.IntentCreateEvent:
		return a.stepDialogue(ctx, msg, dialogue.SlotState{}, tr)
	case nlu.IntentListEvents:
		return a.listEvents(ctx, msg.UserID, tr)
	case nlu.IntentDeleteEvent:
		return a.deleteEvents(ctx, msg, tr)
	case nlu.IntentUpdateEvent:
		return a.updateEvents(ctx, msg, tr)
	default:
		if dialogue.IsReset(msg.Content) {
			a.clearSession(ctx, msg.UserID)
			return "Okay! Let me know if you need anything else."
		}
		return helpReply
	}
}

// stepDialogue advances the slot-filling machine one utterance and fires the
// executor when the request becomes complete.
func (a *DefaultAgent) stepDialogue(ctx context.Context, msg types.Message, state dialogue.SlotState, tr *trace.TurnTrace) string {
	res := dialogue.Step(state, msg.Content)

	for _, sup := range res.Superseded {
		log.Printf("[Agent] Superseded extraction user=%s slot=%s kept=%q discarded=%q", msg.UserID, sup.Slot, sup.Kept, sup.Discarded)
		tr.Superseded = append(tr.Superseded, trace.SupersededExtraction{Slot: sup.Slot, Kept: sup.Kept, Discarded: sup.Discarded})
	}

	if !res.Ready {
		a.saveSession(ctx, msg.UserID, res.State)
		if res.WasReset {
			return res.Reply
		}
		tr.Slots = slotMap(res.State)
		return res.Reply
	}

	// Completion clears the session regardless of how the create call ends;
	// a failed create must not keep stale slots alive.
	a.clearSession(ctx, msg.UserID)
	tr.Slots = map[string]string{
		dialogue.SlotSubject: res.Filled.Subject,
		dialogue.SlotDate:    res.Filled.Date,
		dialogue.SlotTime:    res.Filled.Time,
	}

	created, err := a.executor.CreateEvent(ctx, msg.UserID, a.now(), res.Filled.Subject, res.Filled.Date, res.Filled.Time)
	if err != nil {
		tr.Outcome = "create_failed"
		tr.Error = err.Error()
		if err == calendar.ErrNotAuthenticated {
			return a.loginPrompt(msg)
		}
		log.Printf("[Agent] Event creation failed for user=%s: %v", msg.UserID, err)
		return "I couldn't create the event with your calendar provider. The request was cleared; please try again."
	}

	tr.Outcome = "created"
	when := created.Start.In(a.executor.Location()).Format("Monday, Jan 2 at 3:04 PM")
	return fmt.Sprintf("Done! I scheduled %q for %s.", created.Summary, when)
}

func (a *DefaultAgent) listEvents(ctx context.Context, userID string, tr *trace.TurnTrace) string {
	events, err := a.executor.ListEvents(ctx, userID, a.now(), 10)
	if err != nil {
		tr.Outcome = "list_failed"
		tr.Error = err.Error()
		log.Printf("[Agent] List events failed for user=%s: %v", userID, err)
		return "I couldn't reach your calendar just now. Please try again."
	}
	tr.Outcome = fmt.Sprintf("listed_%d", len(events))

	if len(events) == 0 {
		return "You have no upcoming events."
	}
	var b strings.Builder
	b.WriteString("Here are your upcoming events:\n")
	for i, ev := range events {
		when := ev.Start.In(a.executor.Location()).Format("Mon, Jan 2 at 3:04 PM")
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, ev.Summary, when)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *DefaultAgent) deleteEvents(ctx context.Context, msg types.Message, tr *trace.TurnTrace) string {
	criteria := a.classifier.ExtractDeleteCriteria(ctx, msg.Content)
	if !criteria.Valid() {
		tr.Outcome = "delete_not_understood"
		return "I couldn't work out which events to cancel. Try \"cancel all events\", \"cancel the meeting with Bob\", or \"cancel tomorrow's events\"."
	}

	result, err := a.executor.DeleteByCriteria(ctx, msg.UserID, a.now(), criteria)
	if err != nil {
		tr.Outcome = "delete_failed"
		tr.Error = err.Error()
		log.Printf("[Agent] Delete by criteria failed for user=%s: %v", msg.UserID, err)
		return "I couldn't reach your calendar just now. Please try again."
	}

	tr.Outcome = fmt.Sprintf("deleted_%d_skipped_%d", result.Deleted, result.Skipped)
	text := fmt.Sprintf("Cancelled %d event(s)", result.Deleted)
	if result.Skipped > 0 {
		text += fmt.Sprintf(", kept %d", result.Skipped)
	}
	text += "."
	if len(result.ItemErrors) > 0 {
		text += fmt.Sprintf(" %d event(s) could not be removed.", len(result.ItemErrors))
	}
	return text
}

func (a *DefaultAgent) updateEvents(ctx context.Context, msg types.Message, tr *trace.TurnTrace) string {
	criteria := a.classifier.ExtractUpdateCriteria(ctx, msg.Content)
	if !criteria.Valid() {
		tr.Outcome = "update_not_understood"
		return "I couldn't work out which events to move. Try \"postpone my next meeting by 2 hours\" or \"prepone tomorrow's events by 1 hour\"."
	}

	result, err := a.executor.UpdateByCriteria(ctx, msg.UserID, a.now(), criteria)
	if err != nil {
		tr.Outcome = "update_failed"
		tr.Error = err.Error()
		log.Printf("[Agent] Update by criteria failed for user=%s: %v", msg.UserID, err)
		return "I couldn't reach your calendar just now. Please try again."
	}

	tr.Outcome = fmt.Sprintf("updated_%d", result.Updated)
	if result.Updated == 0 {
		return "No events matched that request."
	}
	text := fmt.Sprintf("Moved %d event(s):\n%s", result.Updated, strings.Join(result.Details, "\n"))
	if len(result.ItemErrors) > 0 {
		text += fmt.Sprintf("\n%d event(s) could not be moved.", len(result.ItemErrors))
	}
	return text
}

func (a *DefaultAgent) registerCommands() {
	a.command.Register("reset", func(ctx context.Context, msg types.Message, _ []string) (string, error) {
		a.clearSession(ctx, msg.UserID)
		return "Session cleared. What would you like to do?", nil
	})
	a.command.Register("login", func(_ context.Context, msg types.Message, _ []string) (string, error) {
		return "Connect your Google Calendar here: " + a.loginURLFor(msg), nil
	})
	a.command.SetHelpProvider(func() string {
		return "Commands: /help, /status, /reset, /login. Or just talk to me: \"Schedule a meeting with Bob tomorrow at 3 PM\"."
	})
}

func (a *DefaultAgent) authenticated(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	ok, err := a.gate.HasCredential(ctx, userID)
	if err != nil {
		log.Printf("[Agent] Credential check failed for user=%s: %v", userID, err)
		return false
	}
	return ok
}

func (a *DefaultAgent) loginPrompt(msg types.Message) string {
	return "Please connect your Google Calendar first: " + a.loginURLFor(msg)
}

// loginURLFor carries the channel-scoped user id through the consent flow so
// tokens from chat channels land under the id the channel will keep sending.
func (a *DefaultAgent) loginURLFor(msg types.Message) string {
	loginURL := a.baseURL + "/login"
	if msg.ChannelID != "" && msg.ChannelID != "web" && msg.UserID != "" {
		loginURL += "?u=" + url.QueryEscape(msg.UserID)
	}
	return loginURL
}

func (a *DefaultAgent) saveSession(ctx context.Context, userID string, state dialogue.SlotState) {
	if err := a.sessions.Save(ctx, userID, state); err != nil {
		log.Printf("[Agent] Failed to persist session for user=%s: %v", userID, err)
	}
}

func (a *DefaultAgent) clearSession(ctx context.Context, userID string) {
	if err := a.sessions.Delete(ctx, userID); err != nil {
		log.Printf("[Agent] Failed to clear session for user=%s: %v", userID, err)
	}
}

func (a *DefaultAgent) record(ctx context.Context, tr trace.TurnTrace) {
	if a.tracer == nil {
		return
	}
	if err := a.tracer.Record(ctx, tr); err != nil {
		log.Printf("[Agent] Failed to record turn trace: %v", err)
	}
}

func (a *DefaultAgent) reply(msg types.Message, content string) types.Message {
	return types.Message{
		ID:        "resp-" + msg.ID,
		Content:   content,
		Role:      types.MessageRoleAssistant,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		RequestID: msg.RequestID,
		Meta:      msg.Meta,
	}
}

func slotMap(state dialogue.SlotState) map[string]string {
	slots := map[string]string{}
	if state.Subject != "" {
		slots[dialogue.SlotSubject] = state.Subject
	}
	if state.Date != "" {
		slots[dialogue.SlotDate] = state.Date
	}
	if state.Time != "" {
		slots[dialogue.SlotTime] = state.Time
	}
	return slots
}
