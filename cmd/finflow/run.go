package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/quantarc/finflow/pkg/classifier"
	"github.com/quantarc/finflow/pkg/cmd"
	"github.com/quantarc/finflow/pkg/log"
	"github.com/quantarc/finflow/pkg/planner"
	"github.com/quantarc/finflow/pkg/synthesizer"
	"github.com/quantarc/finflow/pkg/workflow"
)

func newEngine(ctx context.Context, command *cli.Command) (*workflow.Engine, func(), error) {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("cli")

	checkpoints, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := checkpoints.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close checkpoint store", "error", err)
		}
	}

	engine := workflow.NewEngine(
		logger,
		cmd.NewRegistry(logger),
		classifier.New(),
		planner.New(),
		synthesizer.New(),
		workflow.WithCheckpointStore(checkpoints),
	)

	return engine, cleanup, nil
}

func runQuery(ctx context.Context, command *cli.Command, query string) error {
	engine, cleanup, err := newEngine(ctx, command)
	if err != nil {
		return err
	}
	defer cleanup()

	sessionID := command.String("session-id")

	if !command.Bool("stream") {
		state, err := engine.Invoke(ctx, query, sessionID)
		if err != nil {
			return err
		}

		printAnswer(state)

		return nil
	}

	updates, err := engine.Stream(ctx, query, sessionID)
	if err != nil {
		return err
	}

	for update := range updates {
		fmt.Printf("[%s] tasks: %d completed, %d failed, %d pending\n",
			update.Phase,
			update.State.CompletedCount(),
			update.State.FailedCount(),
			len(update.State.PendingTasks()))

		if update.State.Terminal() {
			fmt.Println()
			printAnswer(update.State)
		}
	}

	return nil
}

func resumeSession(ctx context.Context, command *cli.Command, sessionID string) error {
	engine, cleanup, err := newEngine(ctx, command)
	if err != nil {
		return err
	}
	defer cleanup()

	state, err := engine.Resume(ctx, sessionID)
	if err != nil {
		return err
	}

	printAnswer(state)

	return nil
}

func listSessions(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("cli")

	checkpoints, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := checkpoints.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close checkpoint store", "error", err)
		}
	}()

	sessions, err := checkpoints.ListSessions(ctx)
	if err != nil {
		return err
	}

	for _, sessionID := range sessions {
		state, err := checkpoints.LoadState(ctx, sessionID)
		if err != nil {
			fmt.Printf("%s (unreadable: %v)\n", sessionID, err)

			continue
		}

		status := "in progress"
		if state.Terminal() {
			status = "finished"
		}

		fmt.Printf("%s  %-11s  %s\n", sessionID, status, state.OriginalQuery)
	}

	return nil
}
