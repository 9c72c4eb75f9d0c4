package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/quantarc/finflow/pkg/cmd"
	"github.com/quantarc/finflow/pkg/log"
	"github.com/quantarc/finflow/pkg/models"
)

func main() {
	command := &cli.Command{
		Name:                  "finflow",
		Usage:                 "Run analytical queries through the orchestration engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Checkpoint store URL (file path, postgres:// or redis://)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Aliases:   []string{"r"},
				Usage:     "Run a query to completion and print the answer",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "stream",
						Aliases: []string{"s"},
						Usage:   "Print progress for every step",
					},
					&cli.StringFlag{
						Name:  "session-id",
						Usage: "Session id to checkpoint under (generated when omitted)",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					query := command.Args().First()
					if query == "" {
						return fmt.Errorf("query argument is required")
					}

					return runQuery(ctx, command, query)
				},
			},
			{
				Name:      "resume",
				Usage:     "Resume an unfinished session from its checkpoint",
				ArgsUsage: "<session-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					sessionID := command.Args().First()
					if sessionID == "" {
						return fmt.Errorf("session-id argument is required")
					}

					return resumeSession(ctx, command, sessionID)
				},
			},
			{
				Name:  "sessions",
				Usage: "List checkpointed sessions",
				Action: func(ctx context.Context, command *cli.Command) error {
					return listSessions(ctx, command)
				},
			},
			{
				Name:  "agents",
				Usage: "List registered agents and their tools",
				Action: func(ctx context.Context, command *cli.Command) error {
					return listAgents(command)
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printAnswer(state *models.WorkflowState) {
	fmt.Println(state.FinalAnswer)
	fmt.Fprintf(os.Stderr, "\nsession: %s complexity: %s tasks: %d completed, %d failed\n",
		state.SessionID, state.Complexity, state.CompletedCount(), state.FailedCount())
}

func listAgents(command *cli.Command) error {
	log.Setup(command.String("log-level"))

	registry := cmd.NewRegistry(log.WithModule("cli"))

	capabilities, err := registry.Capabilities()
	if err != nil {
		return err
	}

	for _, name := range registry.AvailableAgents() {
		factory, ok := registry.AgentFactory(name)
		if !ok {
			continue
		}

		fmt.Printf("%s: %s\n", factory.ID(), factory.Description())

		for _, tool := range capabilities[name] {
			fmt.Printf("  - %s\n", tool)
		}
	}

	return nil
}
