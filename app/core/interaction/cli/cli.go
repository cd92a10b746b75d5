package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"calagent/app/pkg/types"
)

// CLIChannel is a local REPL, mostly useful for development and for driving
// the agent without the web UI.
type CLIChannel struct {
	id     string
	userID string
}

func NewCLIChannel(userID string) *CLIChannel {
	if strings.TrimSpace(userID) == "" {
		userID = "local_user"
	}
	return &CLIChannel{id: "cli", userID: userID}
}

func (c *CLIChannel) ID() string {
	return c.id
}

func (c *CLIChannel) Start(ctx context.Context, handler func(types.Message)) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println(">> CalAgent CLI started. Type 'exit' to quit.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			fmt.Print("> ")
			if !scanner.Scan() {
				return nil
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "exit" || text == "quit" {
				fmt.Println("Exiting CLI loop...")
				return nil
			}
			if text == "" {
				continue
			}

			msgID := fmt.Sprintf("cli-%d", time.Now().UnixNano())
			handler(types.Message{
				ID:        msgID,
				Content:   text,
				Role:      types.MessageRoleUser,
				ChannelID: c.id,
				UserID:    c.userID,
				RequestID: msgID,
			})
		}
	}
}

func (c *CLIChannel) Send(_ context.Context, msg types.Message) error {
	fmt.Printf("\n%s\n", msg.Content)
	return nil
}
