package slash

import (
	"context"
	"errors"
	"strings"
	"testing"

	"calagent/app/pkg/types"
)

func msg(content string) types.Message {
	return types.Message{ID: "m1", Content: content, UserID: "u1", ChannelID: "cli"}
}

func TestExecuteNonCommandPassesThrough(t *testing.T) {
	e := NewExecutor()
	out, handled, err := e.Execute(context.Background(), msg("schedule a meeting"))
	if handled || err != nil || out != "" {
		t.Fatalf("expected pass-through, got (%q, %v, %v)", out, handled, err)
	}
}

func TestExecuteRegisteredCommand(t *testing.T) {
	e := NewExecutor()
	var gotArgs []string
	e.Register("reset", func(_ context.Context, _ types.Message, args []string) (string, error) {
		gotArgs = args
		return "cleared", nil
	})

	out, handled, err := e.Execute(context.Background(), msg("/reset now please"))
	if !handled || err != nil {
		t.Fatalf("execute = (%q, %v, %v)", out, handled, err)
	}
	if out != "cleared" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "now" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	e := NewExecutor()
	out, handled, err := e.Execute(context.Background(), msg("/bogus"))
	if !handled || err != nil {
		t.Fatalf("execute = (%q, %v, %v)", out, handled, err)
	}
	if !strings.Contains(out, "/bogus") || !strings.Contains(out, "/help") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExecuteHandlerError(t *testing.T) {
	e := NewExecutor()
	boom := errors.New("boom")
	e.Register("fail", func(context.Context, types.Message, []string) (string, error) {
		return "", boom
	})
	_, handled, err := e.Execute(context.Background(), msg("/fail"))
	if !handled || !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got (%v, %v)", handled, err)
	}
}

func TestHelpUsesProvider(t *testing.T) {
	e := NewExecutor()
	out, handled, _ := e.Execute(context.Background(), msg("/help"))
	if !handled || !strings.Contains(out, "/help") {
		t.Fatalf("default help = %q", out)
	}

	e.SetHelpProvider(func() string { return "custom help" })
	out, _, _ = e.Execute(context.Background(), msg("/help"))
	if out != "custom help" {
		t.Fatalf("provider help = %q", out)
	}
}

func TestStatusUsesProvider(t *testing.T) {
	e := NewExecutor()
	out, _, _ := e.Execute(context.Background(), msg("/status"))
	if out != "Status: ok" {
		t.Fatalf("default status = %q", out)
	}

	e.SetStatusProvider(func(context.Context) map[string]interface{} {
		return map[string]interface{}{"channels": 2, "agent": "CalAgent"}
	})
	out, _, _ = e.Execute(context.Background(), msg("/status"))
	if !strings.Contains(out, "agent: CalAgent") || !strings.Contains(out, "channels: 2") {
		t.Fatalf("provider status = %q", out)
	}
}

func TestCommandsSorted(t *testing.T) {
	e := NewExecutor()
	e.Register("reset", func(context.Context, types.Message, []string) (string, error) { return "", nil })
	e.Register("login", func(context.Context, types.Message, []string) (string, error) { return "", nil })

	names := e.Commands()
	want := []string{"help", "login", "reset", "status"}
	if len(names) != len(want) {
		t.Fatalf("commands = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("commands = %v, want %v", names, want)
		}
	}
}
