package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/pokus/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "pokus",
		Usage:   "Route conversation turns to task handlers",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewInitCommand(),
			NewServeCommand(),
			NewAskCommand(),
			NewStatusCommand(),
			NewTasksCommand(),
			NewSessionsCommand(),
			NewMemoryCommand(),
		},
	}
}
