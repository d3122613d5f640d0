package activator

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/stretchr/testify/require"
)

// DockerHelper inspects the containers the Docker provider manages.
type DockerHelper struct {
	client *client.Client
}

// NewDockerHelper returns a Docker helper, the test is skipped unless Docker tests are enabled.
func NewDockerHelper(t *testing.T) *DockerHelper {
	t.Helper()

	if os.Getenv("ACTIVATOR_INTEGRATION_DOCKER") != "true" {
		t.Skip("Skipping Docker integration test: ACTIVATOR_INTEGRATION_DOCKER is not set to 'true'")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	require.NoError(t, err, "Failed to create Docker client")

	return &DockerHelper{client: cli}
}

// ContainerState returns the state of a container by name, empty when it doesn't exist.
func (d *DockerHelper) ContainerState(t *testing.T, containerName string) string {
	t.Helper()

	containers, err := d.client.ContainerList(context.Background(), container.ListOptions{All: true})
	require.NoError(t, err, "Failed to list containers")

	for _, c := range containers {
		for _, name := range c.Names {
			// Docker names start with /.
			if name == "/"+containerName || name == containerName {
				return c.State
			}
		}
	}
	return ""
}

// WaitForContainerState waits up to 15 seconds for a container to reach a state.
func (d *DockerHelper) WaitForContainerState(t *testing.T, containerName, state string) {
	t.Helper()

	for range 30 {
		if d.ContainerState(t, containerName) == state {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("Container %s did not reach %q state within 15 seconds", containerName, state)
}

// CleanupContainer removes a container if it exists.
func (d *DockerHelper) CleanupContainer(t *testing.T, containerName string) {
	t.Helper()

	err := d.client.ContainerRemove(context.Background(), containerName, container.RemoveOptions{Force: true})
	if err != nil && !strings.Contains(err.Error(), "No such container") {
		t.Logf("Warning: Failed to remove container %s during cleanup: %v", containerName, err)
	}
}
