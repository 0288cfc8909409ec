package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show pokus gateway status",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Gateway base URL",
				Value: "http://127.0.0.1:8000",
			},
		},
		Action: runStatus,
	}
}

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	TasksRegistered int    `json:"tasks_registered"`
	TasksEnabled    int    `json:"tasks_enabled"`
	LLMProvider     string `json:"llm_provider"`
	WebSearch       string `json:"web_search"`
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cmd.String("url")+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Gateway: not running")
		return nil
	}
	defer resp.Body.Close()

	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}

	fmt.Printf("Gateway:   %s (version %s)\n", h.Status, h.Version)
	fmt.Printf("Uptime:    %s\n", time.Duration(h.UptimeSeconds)*time.Second)
	fmt.Printf("Tasks:     %d registered, %d enabled\n", h.TasksRegistered, h.TasksEnabled)
	fmt.Printf("Model:     %s\n", h.LLMProvider)
	fmt.Printf("Search:    %s\n", h.WebSearch)
	return nil
}
