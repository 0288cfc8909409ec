package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	wsclient "github.com/dohr-michael/pokus/clients/ws"
	"github.com/dohr-michael/pokus/internal/gateway/ws"
	"github.com/dohr-michael/pokus/internal/graph"
	"github.com/dohr-michael/pokus/internal/sessions"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send messages to the gateway and print the replies",
		ArgsUsage: "[message]",
		Description: "With a message argument, sends it once and exits. Without one, " +
			"reads messages line by line from stdin (interactive prompt on a terminal).",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway WebSocket URL",
				Value: "ws://127.0.0.1:8000/api/ws",
			},
			&cli.StringFlag{
				Name:    "session",
				Aliases: []string{"s"},
				Usage:   "Session ID to resume (empty = new session)",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "User ID owning cross-session memory",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Print routing details and lifecycle events to stderr",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Per-message timeout in seconds",
				Value: 120,
			},
		},
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	client, err := wsclient.Dial(ctx, cmd.String("gateway"))
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer client.Close()

	s := &askSession{
		client:    client,
		sessionID: cmd.String("session"),
		userID:    cmd.String("user"),
		verbose:   cmd.Bool("verbose"),
		timeout:   time.Duration(cmd.Int("timeout")) * time.Second,
		out:       os.Stdout,
	}
	if s.sessionID == "" {
		s.sessionID = sessions.NewSessionID()
		fmt.Fprintf(os.Stderr, "session: %s\n", s.sessionID)
	}
	if s.verbose {
		if err := client.Call(ctx, ws.MethodSubscribe, ws.SubscribeParams{SessionID: s.sessionID}, nil); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		client.OnEvent(func(f ws.Frame) {
			fmt.Fprintf(os.Stderr, "  · %s %s\n", f.Event, f.Payload)
		})
	}

	if msg := strings.Join(cmd.Args().Slice(), " "); msg != "" {
		return s.send(ctx, msg)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	return s.repl(ctx, os.Stdin, interactive)
}

type askSession struct {
	client    *wsclient.Client
	sessionID string
	userID    string
	verbose   bool
	timeout   time.Duration
	out       io.Writer
}

// repl sends one message per input line until EOF or "exit".
func (s *askSession) repl(ctx context.Context, in io.Reader, interactive bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(os.Stderr, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := s.send(ctx, line); err != nil {
			if !interactive || ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (s *askSession) send(ctx context.Context, content string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res graph.TurnResult
	err := s.client.Call(ctx, ws.MethodSendMessage, ws.SendMessageParams{
		SessionID: s.sessionID,
		UserID:    s.userID,
		Content:   content,
	}, &res)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timeout waiting for response")
		}
		return err
	}

	if s.verbose {
		fmt.Fprintf(os.Stderr, "  route: %s (%s) -> %s, turn %d\n",
			res.Decision.TaskID, res.Decision.Source, res.HandlerID, res.TurnCount)
	}
	for _, m := range res.Messages {
		fmt.Fprintln(s.out, m.Content)
	}
	return nil
}
