package activator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slok/activator/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "activator"
	}

	// go test changes the CWD to the test package directory, relative paths would break.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("ACTIVATOR_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("activator binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "ACTIVATOR_INTEGRATION"
		envBinary     = "ACTIVATOR_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// Runner runs activator commands against an isolated database.
type Runner struct {
	t      *testing.T
	binary string
	dbPath string
}

// NewRunner returns a runner with a fresh database on a temporary directory.
func NewRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	return &Runner{
		t:      t,
		binary: cfg.Binary,
		dbPath: filepath.Join(t.TempDir(), "activator.db"),
	}
}

// Run executes the command with the runner database and no logs.
func (r *Runner) Run(ctx context.Context, cmdArgs string) (stdout, stderr []byte, err error) {
	r.t.Helper()
	env := []string{"ACTIVATOR_DB_PATH=" + r.dbPath}
	return testutils.RunActivator(ctx, env, r.binary, cmdArgs, true)
}
