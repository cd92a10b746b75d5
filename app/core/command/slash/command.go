package slash

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"calagent/app/pkg/types"
)

// Handler runs one slash command. parts holds the arguments after the name.
type Handler func(ctx context.Context, msg types.Message, parts []string) (string, error)

type HelpProvider func() string

type Executor struct {
	mu             sync.RWMutex
	handlers       map[string]Handler
	helpProvider   HelpProvider
	statusProvider func(context.Context) map[string]interface{}
}

func NewExecutor() *Executor {
	return &Executor{handlers: map[string]Handler{}}
}

func (e *Executor) Register(name string, handler Handler) {
	if e == nil || handler == nil {
		return
	}
	commandName := strings.ToLower(strings.TrimSpace(name))
	if commandName == "" {
		return
	}
	e.mu.Lock()
	e.handlers[commandName] = handler
	e.mu.Unlock()
}

func (e *Executor) SetHelpProvider(provider HelpProvider) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.helpProvider = provider
	e.mu.Unlock()
}

func (e *Executor) SetStatusProvider(provider func(context.Context) map[string]interface{}) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.statusProvider = provider
	e.mu.Unlock()
}

// Execute dispatches "/name args...". The second return reports whether the
// message was a slash command at all.
func (e *Executor) Execute(ctx context.Context, msg types.Message) (string, bool, error) {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, "/") {
		return "", false, nil
	}

	parts := strings.Fields(content)
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))

	switch name {
	case "help":
		return e.helpText(), true, nil
	case "status":
		return e.statusText(ctx), true, nil
	}

	e.mu.RLock()
	handler, ok := e.handlers[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("Unknown command: /%s. Try /help.", name), true, nil
	}

	log.Printf("[Slash] user=%s channel=%s command=/%s", msg.UserID, msg.ChannelID, name)
	out, err := handler(ctx, msg, parts[1:])
	return out, true, err
}

func (e *Executor) Commands() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.handlers)+2)
	for name := range e.handlers {
		names = append(names, name)
	}
	names = append(names, "help", "status")
	sort.Strings(names)
	return names
}

func (e *Executor) helpText() string {
	e.mu.RLock()
	provider := e.helpProvider
	e.mu.RUnlock()
	if provider != nil {
		return provider()
	}
	return "Available commands: /" + strings.Join(e.Commands(), ", /")
}

func (e *Executor) statusText(ctx context.Context) string {
	e.mu.RLock()
	provider := e.statusProvider
	e.mu.RUnlock()
	if provider == nil {
		return "Status: ok"
	}

	status := provider(ctx)
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Status:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, status[k])
	}
	return strings.TrimRight(b.String(), "\n")
}
