package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/activator/internal/app/list"
	"github.com/slok/activator/internal/model"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	kindFilter  string
	stateFilter string
	format      string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List all resources.")
	c.Cmd.Flag("kind", "Filter by kind (organization, space, route, database, managed-service, user-provided-service, app).").StringVar(&c.kindFilter)
	c.Cmd.Flag("state", "Filter by state (unprovisioned, created, started, stopped, removed, unknown).").StringVar(&c.stateFilter)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	kindFilter, err := parseKindFilter(c.kindFilter)
	if err != nil {
		return err
	}
	stateFilter, err := parseStateFilter(c.stateFilter)
	if err != nil {
		return err
	}

	repo, _, err := c.rootCmd.repositories(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := list.NewService(list.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	resources, err := svc.Run(ctx, list.Request{
		KindFilter:  kindFilter,
		StateFilter: stateFilter,
	})
	if err != nil {
		return fmt.Errorf("could not list resources: %w", err)
	}

	if err := c.rootCmd.printer(c.format).PrintList(resources); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}

func parseKindFilter(s string) (*model.ResourceKind, error) {
	if s == "" {
		return nil, nil
	}

	kind := model.ResourceKind(strings.ToLower(s))
	if err := kind.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kind filter %q: %w", s, err)
	}
	return &kind, nil
}

func parseStateFilter(s string) (*model.LifecycleState, error) {
	if s == "" {
		return nil, nil
	}

	state := model.LifecycleState(strings.ToUpper(s))
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state filter %q: %w", s, err)
	}
	return &state, nil
}
