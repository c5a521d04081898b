// Package main provides a simple CLI client for the gateway WebSocket protocol.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/gateway/internal/protocol"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr      string
		apiKey    string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "gateway-cli",
		Short: "Interactive client for the gateway session protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, addr, apiKey, sessionID)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://127.0.0.1:8045/ws", "WebSocket server address")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("PROXY_API_KEY"), "API key for authentication")
	cmd.Flags().StringVar(&sessionID, "session", "cli", "session id for user messages")
	return cmd
}

type current struct {
	mu sync.Mutex
	id string
}

func (c *current) set(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

func (c *current) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func run(cmd *cobra.Command, addr, apiKey, sessionID string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connecting to %s...\n", addr)

	client, err := NewClient(addr, apiKey)
	if err != nil {
		return err
	}
	defer client.Close()

	sess := &current{id: sessionID}
	go func() {
		if err := client.ReadMessages(out, sess.set); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "connection closed: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Fprintln(out, "Connected. Type a message and press Enter to send.")
	fmt.Fprintln(out, "Commands: :list, :new <title> | <repo> [| <branch>], :load <id>, :quit")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		msg, quit, err := parseInput(scanner.Text(), sess.get())
		if quit {
			fmt.Fprintln(out, "Bye!")
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if msg == nil {
			continue
		}
		if err := client.Send(msg); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return scanner.Err()
}

// parseInput turns one input line into a client message.
func parseInput(line, sessionID string) (msg any, quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return &protocol.UserMessage{
			BaseMessage: protocol.BaseMessage{Type: protocol.TypeUserMessage},
			SessionID:   sessionID,
			Content:     line,
		}, false, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "quit", "q":
		return nil, true, nil
	case "list":
		return &protocol.ListSessionsMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypeListSessions}}, false, nil
	case "load":
		if rest == "" {
			return nil, false, fmt.Errorf("usage: :load <session id>")
		}
		return &protocol.LoadSessionMessage{
			BaseMessage: protocol.BaseMessage{Type: protocol.TypeLoadSession},
			SessionID:   rest,
		}, false, nil
	case "new":
		parts := strings.Split(rest, "|")
		if len(parts) < 2 {
			return nil, false, fmt.Errorf("usage: :new <title> | <repo> [| <branch>]")
		}
		m := &protocol.CreateSessionMessage{
			BaseMessage: protocol.BaseMessage{Type: protocol.TypeCreateSession},
			Title:       strings.TrimSpace(parts[0]),
			Repo:        strings.TrimSpace(parts[1]),
		}
		if len(parts) > 2 {
			if b := strings.TrimSpace(parts[2]); b != "" {
				m.Branch = &b
			}
		}
		return m, false, nil
	default:
		return nil, false, fmt.Errorf("unknown command :%s", name)
	}
}
