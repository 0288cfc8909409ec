package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/pokus/internal/tasks"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect the task catalog",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List built-in and catalog tasks",
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "validate",
				Usage:     "Parse catalog files and report errors",
				ArgsUsage: "<file>...",
				Action:    runTasksValidate,
			},
		},
		DefaultCommand: "list",
	}
}

// catalogRegistry builds an unbound registry from the configured catalog.
func catalogRegistry(cmd *cli.Command) (*tasks.Registry, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	setupLogging(cmd, cfg)

	defs, err := loadTaskDefinitions(cfg.Tasks)
	if err != nil {
		return nil, err
	}
	reg := tasks.NewRegistry()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			fmt.Fprintf(os.Stderr, "skip %s (%s): %v\n", def.ID, def.Source, err)
		}
	}
	return reg, nil
}

func runTasksList(_ context.Context, cmd *cli.Command) error {
	reg, err := catalogRegistry(cmd)
	if err != nil {
		return err
	}

	list := reg.List()
	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENABLED\tNAME\tKEYWORDS\tSOURCE")
	for _, t := range list {
		source := t.Source
		if source == "" {
			source = "builtin"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%s\n",
			t.ID,
			t.Enabled,
			t.DisplayName,
			len(t.Keywords),
			source,
		)
	}
	return w.Flush()
}

func runTasksShow(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: pokus tasks show <task_id>")
	}

	reg, err := catalogRegistry(cmd)
	if err != nil {
		return err
	}
	t, err := reg.Get(id)
	if err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Name:        %s\n", t.DisplayName)
	fmt.Printf("Description: %s\n", t.Description)
	fmt.Printf("Enabled:     %t\n", t.Enabled)
	if t.Category != "" {
		fmt.Printf("Category:    %s\n", t.Category)
	}
	if t.Model != "" {
		fmt.Printf("Model:       %s\n", t.Model)
	}
	if len(t.ToolNames) > 0 {
		fmt.Printf("Tools:       %s\n", strings.Join(t.ToolNames, ", "))
	}
	if len(t.Keywords) > 0 {
		fmt.Printf("Keywords:    %s\n", strings.Join(t.Keywords, ", "))
	}
	if t.SystemPrompt != "" {
		fmt.Printf("\nSystem prompt:\n%s\n", t.SystemPrompt)
	}
	return nil
}

func runTasksValidate(_ context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("usage: pokus tasks validate <file>...")
	}

	failed := 0
	for _, f := range files {
		defs, err := tasks.LoadCatalog(f)
		if err != nil {
			fmt.Printf("FAIL  %s: %v\n", f, err)
			failed++
			continue
		}
		fmt.Printf("ok    %s (%d tasks)\n", f, len(defs))
	}
	if failed > 0 {
		return fmt.Errorf("%d catalog(s) invalid", failed)
	}
	return nil
}
