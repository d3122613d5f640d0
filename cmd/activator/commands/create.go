package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/activator/internal/app/create"
	storageio "github.com/slok/activator/internal/storage/io"
)

type CreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file   string
	format string
}

// NewCreateCommand returns the create command.
func NewCreateCommand(rootCmd *RootCommand, app *kingpin.Application) *CreateCommand {
	c := &CreateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("create", "Register the resources of a resources YAML file, unprovisioned.")
	c.Cmd.Flag("file", "Path to the resources YAML file.").Short('f').Required().StringVar(&c.file)
	formatFlag(c.Cmd, &c.format)

	return c
}

func (c CreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c CreateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	path, err := filepath.Abs(c.file)
	if err != nil {
		return fmt.Errorf("could not resolve resources file path: %w", err)
	}
	loader := storageio.NewResourcesYAMLRepository(os.DirFS(filepath.Dir(path)))
	defs, err := loader.GetDefinitions(ctx, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("could not load resources: %w", err)
	}

	repo, _, err := c.rootCmd.repositories(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := create.NewService(create.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	resources, err := svc.Run(ctx, create.Request{Definitions: defs})
	if err != nil {
		return fmt.Errorf("could not create resources: %w", err)
	}

	if err := c.rootCmd.printer(c.format).PrintList(resources); err != nil {
		return fmt.Errorf("could not print resources: %w", err)
	}

	return nil
}
