package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect stored session checkpoints",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all sessions",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show the messages of a session",
				ArgsUsage: "<session_id>",
				Action:    runSessionsShow,
			},
			{
				Name:      "delete",
				Usage:     "Delete a session checkpoint",
				ArgsUsage: "<session_id>",
				Action:    runSessionsDelete,
			},
		},
		DefaultCommand: "list",
	}
}

// withStores opens the configured stores for a one-shot command.
func withStores(ctx context.Context, cmd *cli.Command, fn func(*stores) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cmd, cfg)
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func runSessionsList(ctx context.Context, cmd *cli.Command) error {
	return withStores(ctx, cmd, func(st *stores) error {
		list, err := st.checkpoints.List(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTURNS\tMESSAGES\tHANDLER\tUPDATED")
		for _, s := range list {
			handler := s.LastActiveHandler
			if handler == "" {
				handler = "-"
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
				s.ID,
				s.TurnCount,
				s.MessageCount,
				handler,
				s.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	})
}

func runSessionsShow(ctx context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: pokus sessions show <session_id>")
	}

	return withStores(ctx, cmd, func(st *stores) error {
		cp, err := st.checkpoints.Load(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}

		fmt.Printf("Session:  %s\n", cp.Session.ID)
		fmt.Printf("Turns:    %d\n", cp.Session.TurnCount)
		fmt.Printf("Handler:  %s\n", cp.Session.LastActiveHandler)
		fmt.Printf("Outputs:  %v\n\n", cp.State.HandlerOutputs)
		for _, m := range cp.State.Messages {
			fmt.Printf("[%s] %s: %s\n", m.Ts.Format("15:04:05"), m.Role, m.Content)
		}
		return nil
	})
}

func runSessionsDelete(ctx context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: pokus sessions delete <session_id>")
	}

	return withStores(ctx, cmd, func(st *stores) error {
		if err := st.checkpoints.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		fmt.Printf("Session %s deleted.\n", sessionID)
		return nil
	})
}
