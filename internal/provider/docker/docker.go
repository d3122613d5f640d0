package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/provider"
)

const (
	// AttrImage is the app attribute with the container image.
	AttrImage = "image"
	// AttrCommand is the app attribute with the container command, split on spaces.
	AttrCommand = "command"
	// AttrEnvPrefix prefixes the app attributes that become container environment variables.
	AttrEnvPrefix = "env."

	labelResourceID    = "activator.resource-id"
	labelCorrelationID = "activator.correlation-id"
	labelEnv           = "activator.env"
)

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// ProviderConfig is the configuration for the Docker provider.
type ProviderConfig struct {
	Client DockerClient
	// RequestTimeout is the timeout of every Docker API call.
	RequestTimeout time.Duration
	// StopTimeout is the graceful shutdown time given to containers.
	StopTimeout time.Duration
	Logger      log.Logger
}

func (c *ProviderConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Minute
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "provider.Docker"})
	return nil
}

// Provider is the Docker implementation of provider.Provider, it runs apps as containers.
type Provider struct {
	client         DockerClient
	requestTimeout time.Duration
	stopTimeout    time.Duration
	logger         log.Logger
}

var _ provider.Provider = &Provider{}

// NewProvider creates a new Docker provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Provider{
		client:         cfg.Client,
		requestTimeout: cfg.RequestTimeout,
		stopTimeout:    cfg.StopTimeout,
		logger:         cfg.Logger,
	}, nil
}

// ContainerName returns the container name used for an app.
func ContainerName(envLabel, name string) string {
	if envLabel == "" {
		return strings.ToLower(fmt.Sprintf("activator-%s", name))
	}
	return strings.ToLower(fmt.Sprintf("activator-%s-%s", envLabel, name))
}

// Create pulls the app image and creates its container, it doesn't start it.
// If the container already exists it is reused.
func (p *Provider) Create(ctx context.Context, res model.Resource, actx model.ActivationContext) (string, error) {
	img := res.Attribute(AttrImage, "")
	if img == "" {
		return "", fmt.Errorf("app %s has no %q attribute: %w", res.Name, AttrImage, model.ErrNotValid)
	}
	containerName := ContainerName(actx.EnvLabel, res.Name)

	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	info, err := p.client.ContainerInspect(ctx, containerName)
	if err == nil {
		p.logger.Infof("Container %s already exists, reusing it", containerName)
		return info.ID, nil
	}
	if !isNotFound(err) {
		return "", p.wrapErr("inspect container", err)
	}

	p.logger.Infof("[1/2] Pulling image: %s", img)
	pullResp, err := p.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return "", p.wrapErr("pull image "+img, err)
	}
	// Consume the pull response to ensure it completes.
	_, _ = io.Copy(io.Discard, pullResp)
	pullResp.Close()

	p.logger.Infof("[2/2] Creating container: %s", containerName)
	containerConfig := &container.Config{
		Image: img,
		Env:   containerEnv(res.Attributes),
		Labels: map[string]string{
			labelResourceID:    res.ID,
			labelCorrelationID: actx.CorrelationID,
			labelEnv:           actx.EnvLabel,
		},
	}
	if cmd := res.Attribute(AttrCommand, ""); cmd != "" {
		containerConfig.Cmd = strings.Fields(cmd)
	}

	resp, err := p.client.ContainerCreate(ctx, containerConfig, &container.HostConfig{}, nil, nil, containerName)
	if err != nil {
		return "", p.wrapErr("create container", err)
	}

	p.logger.Infof("Created container %s (%s) for app %s", containerName, resp.ID, res.Name)
	return resp.ID, nil
}

// Start starts the app container.
func (p *Provider) Start(ctx context.Context, res model.Resource) error {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	p.logger.Infof("Starting container: %s", res.ExternalID)
	if err := p.client.ContainerStart(ctx, res.ExternalID, container.StartOptions{}); err != nil {
		if strings.Contains(err.Error(), "already started") || strings.Contains(err.Error(), "is already running") {
			return fmt.Errorf("container %s: %w", res.ExternalID, provider.ErrAlreadyStarted)
		}
		return p.wrapErr("start container "+res.ExternalID, err)
	}

	return nil
}

// Stop stops the app container.
func (p *Provider) Stop(ctx context.Context, res model.Resource) error {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	p.logger.Infof("Stopping container: %s", res.ExternalID)
	timeout := int(p.stopTimeout.Seconds())
	if err := p.client.ContainerStop(ctx, res.ExternalID, container.StopOptions{Timeout: &timeout}); err != nil {
		if strings.Contains(err.Error(), "is already stopped") || strings.Contains(err.Error(), "is not running") {
			return fmt.Errorf("container %s: %w", res.ExternalID, provider.ErrAlreadyStopped)
		}
		return p.wrapErr("stop container "+res.ExternalID, err)
	}

	return nil
}

// Delete removes the app container even if it's running.
func (p *Provider) Delete(ctx context.Context, res model.Resource) error {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	p.logger.Infof("Removing container: %s", res.ExternalID)
	if err := p.client.ContainerRemove(ctx, res.ExternalID, container.RemoveOptions{Force: true}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("container %s: %w", res.ExternalID, provider.ErrAlreadyDeleted)
		}
		return p.wrapErr("remove container "+res.ExternalID, err)
	}

	return nil
}

func (p *Provider) wrapErr(op string, err error) error {
	if provider.IsTimeout(err) {
		return &provider.TransportError{Op: op, Timeout: p.requestTimeout, Err: err}
	}
	return fmt.Errorf("could not %s: %w", op, err)
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "No such container")
}

func containerEnv(attrs map[string]string) []string {
	env := []string{}
	for k, v := range attrs {
		if name, ok := strings.CutPrefix(k, AttrEnvPrefix); ok && name != "" {
			env = append(env, fmt.Sprintf("%s=%s", name, v))
		}
	}
	sort.Strings(env)
	return env
}
