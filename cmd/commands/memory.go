package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/pokus/internal/config"
	"github.com/dohr-michael/pokus/internal/memory"
)

// NewMemoryCommand returns the memory subcommand.
func NewMemoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect cross-session user memory",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the namespaces stored for a user",
				ArgsUsage: "<user_id>",
				Action:    runMemoryList,
			},
			{
				Name:      "show",
				Usage:     "Print a memory record",
				ArgsUsage: "<user_id> [namespace]",
				Action:    runMemoryShow,
			},
			{
				Name:      "set",
				Usage:     "Replace a memory record (payload from argument or stdin)",
				ArgsUsage: "<user_id> <namespace> [payload]",
				Action:    runMemorySet,
			},
			{
				Name:   "keygen",
				Usage:  "Generate an age key file for memory encryption",
				Action: runMemoryKeygen,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Key file path",
						Value: filepath.Join(config.PokusPath(), "memory.key"),
					},
				},
			},
		},
	}
}

func runMemoryList(ctx context.Context, cmd *cli.Command) error {
	userID := cmd.Args().First()
	if userID == "" {
		return fmt.Errorf("usage: pokus memory list <user_id>")
	}

	return withStores(ctx, cmd, func(st *stores) error {
		names, err := st.memory.Namespaces(ctx, userID)
		if err != nil {
			return fmt.Errorf("list namespaces: %w", err)
		}
		if len(names) == 0 {
			fmt.Println("No memory stored for this user.")
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	})
}

func runMemoryShow(ctx context.Context, cmd *cli.Command) error {
	userID := cmd.Args().Get(0)
	namespace := cmd.Args().Get(1)
	if userID == "" {
		return fmt.Errorf("usage: pokus memory show <user_id> [namespace]")
	}
	if namespace == "" {
		namespace = memory.PreferencesNamespace
	}

	return withStores(ctx, cmd, func(st *stores) error {
		payload, err := st.memory.Load(ctx, userID, namespace)
		if err != nil {
			return fmt.Errorf("load memory: %w", err)
		}
		if payload == nil {
			fmt.Println("No record.")
			return nil
		}
		fmt.Println(string(payload))
		return nil
	})
}

func runMemorySet(ctx context.Context, cmd *cli.Command) error {
	userID := cmd.Args().Get(0)
	namespace := cmd.Args().Get(1)
	if userID == "" || namespace == "" {
		return fmt.Errorf("usage: pokus memory set <user_id> <namespace> [payload]")
	}

	payload := []byte(cmd.Args().Get(2))
	if len(payload) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		payload = data
	}

	return withStores(ctx, cmd, func(st *stores) error {
		if err := st.memory.Save(ctx, userID, namespace, payload); err != nil {
			return fmt.Errorf("save memory: %w", err)
		}
		fmt.Printf("Saved %d bytes to %s/%s.\n", len(payload), userID, namespace)
		return nil
	})
}

func runMemoryKeygen(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("out")
	recipient, err := memory.GenerateIdentity(path)
	if err != nil {
		return err
	}
	fmt.Printf("Key file: %s\nRecipient: %s\n", path, recipient)
	fmt.Println(`Set "memory": {"key_file": "` + path + `"} in config.jsonc to enable encryption.`)
	return nil
}
