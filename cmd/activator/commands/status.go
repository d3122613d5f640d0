package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/activator/internal/app/status"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	nameOrID string
	recordID string
	env      string
	format   string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Get the status of a resource, a lifecycle run or the last run of an environment.")
	c.Cmd.Arg("name-or-id", "Resource name or ID.").StringVar(&c.nameOrID)
	c.Cmd.Flag("record", "Lifecycle record ID.").StringVar(&c.recordID)
	c.Cmd.Flag("env", "Environment label, shows its last lifecycle run.").StringVar(&c.env)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, records, err := c.rootCmd.repositories(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := status.NewService(status.ServiceConfig{
		Repository:       repo,
		RecordRepository: records,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, status.Request{
		RecordID: c.recordID,
		NameOrID: c.nameOrID,
		EnvLabel: c.env,
	})
	if err != nil {
		return fmt.Errorf("could not get status: %w", err)
	}

	if err := c.rootCmd.printer(c.format).PrintStatus(res.Resource, res.Record); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}
