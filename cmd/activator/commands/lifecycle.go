package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/activator/internal/app/lifecycle"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/poll"
	"github.com/slok/activator/internal/progress"
)

// LifecycleCommand runs one or more lifecycle steps on the resources of an environment.
type LifecycleCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	step      model.Step
	providers providerFlags

	// Optional steps run in the same process before or after the command step.
	previous     model.Step
	withPrevious bool
	followUp     model.Step
	withFollowUp bool

	namesOrIDs   []string
	env          string
	pollInterval time.Duration
	pollTimeout  time.Duration
	format       string
}

func newLifecycleCommand(rootCmd *RootCommand, app *kingpin.Application, name, help string, step model.Step) *LifecycleCommand {
	c := &LifecycleCommand{rootCmd: rootCmd, step: step}

	c.Cmd = app.Command(name, help)
	c.Cmd.Arg("names-or-ids", "Resource names or IDs, all the resources when missing.").StringsVar(&c.namesOrIDs)
	c.Cmd.Flag("env", "Environment label, scopes the provider names of the resources.").Envar("ACTIVATOR_ENV").Required().StringVar(&c.env)
	c.Cmd.Flag("poll-interval", "Interval between status queries of running operations.").Default(lifecycle.DefaultPollInterval.String()).DurationVar(&c.pollInterval)
	c.Cmd.Flag("poll-timeout", "Maximum time to wait for a running operation.").Default(poll.DefaultTimeout.String()).DurationVar(&c.pollTimeout)
	formatFlag(c.Cmd, &c.format)
	c.providers.register(c.Cmd)

	return c
}

// NewActivateCommand returns the activate command.
func NewActivateCommand(rootCmd *RootCommand, app *kingpin.Application) *LifecycleCommand {
	c := newLifecycleCommand(rootCmd, app, "activate", "Provision the resources on their providers.", model.StepActivate)
	c.Cmd.Flag("first-start", "Run the first start after the activation.").BoolVar(&c.withFollowUp)
	c.followUp = model.StepFirstStart
	return c
}

// NewFirstStartCommand returns the firststart command.
func NewFirstStartCommand(rootCmd *RootCommand, app *kingpin.Application) *LifecycleCommand {
	return newLifecycleCommand(rootCmd, app, "firststart", "Start the resources for the first time after the activation.", model.StepFirstStart)
}

// NewStartCommand returns the start command.
func NewStartCommand(rootCmd *RootCommand, app *kingpin.Application) *LifecycleCommand {
	return newLifecycleCommand(rootCmd, app, "start", "Start the resources.", model.StepStart)
}

// NewStopCommand returns the stop command.
func NewStopCommand(rootCmd *RootCommand, app *kingpin.Application) *LifecycleCommand {
	return newLifecycleCommand(rootCmd, app, "stop", "Stop the resources.", model.StepStop)
}

// NewRemoveCommand returns the rm command.
func NewRemoveCommand(rootCmd *RootCommand, app *kingpin.Application) *LifecycleCommand {
	c := newLifecycleCommand(rootCmd, app, "rm", "Delete the resources from their providers.", model.StepDelete)
	c.Cmd.Flag("stop", "Stop the resources before deleting them.").BoolVar(&c.withPrevious)
	c.previous = model.StepStop
	return c
}

func (c LifecycleCommand) Name() string { return c.Cmd.FullCommand() }

func (c LifecycleCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, records, err := c.rootCmd.repositories(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	registry, err := c.providers.registry(repo, c.rootCmd.Version, logger)
	if err != nil {
		return fmt.Errorf("could not create handlers: %w", err)
	}

	poller, err := poll.New(poll.Config{
		Repository: repo,
		Timeout:    c.pollTimeout,
		Metrics:    c.rootCmd.Metrics,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create poller: %w", err)
	}

	svc, err := lifecycle.NewService(lifecycle.ServiceConfig{
		Repository:       repo,
		RecordRepository: records,
		Dispatcher:       registry,
		Poller:           poller,
		PollInterval:     c.pollInterval,
		Metrics:          c.rootCmd.Metrics,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	p := c.rootCmd.printer(c.format)
	for _, step := range c.stepsToRun() {
		rec, err := svc.Run(ctx, lifecycle.Request{
			NamesOrIDs: c.namesOrIDs,
			Step:       step,
			EnvLabel:   c.env,
		})
		if rec != nil {
			if perr := p.PrintRecord(rec); perr != nil {
				return fmt.Errorf("could not print record: %w", perr)
			}
		}
		if err != nil {
			return fmt.Errorf("could not run %s: %w", strings.ToLower(string(step)), err)
		}
		if rec != nil && rec.Status() != progress.StatusSucceeded {
			return fmt.Errorf("%s ended as %s: %w", strings.ToLower(string(step)), rec.Status(), model.ErrFatal)
		}
	}

	return nil
}

func (c LifecycleCommand) stepsToRun() []model.Step {
	var steps []model.Step
	if c.withPrevious {
		steps = append(steps, c.previous)
	}
	steps = append(steps, c.step)
	if c.withFollowUp {
		steps = append(steps, c.followUp)
	}
	return steps
}
