package hcloud

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/provider"
)

const (
	// AttrServerType is the database attribute with the Hetzner server type.
	AttrServerType = "server_type"
	// AttrImage is the database attribute with the Hetzner image.
	AttrImage = "image"
	// AttrLocation is the database attribute with the Hetzner location.
	AttrLocation = "location"
	// AttrUserData is the database attribute with the cloud-init user data.
	AttrUserData = "user_data"

	defaultServerType = "cx22"
	defaultImage      = "ubuntu-24.04"
)

// ServerClient is the part of the hcloud server client we use.
type ServerClient interface {
	Create(ctx context.Context, opts hcloud.ServerCreateOpts) (hcloud.ServerCreateResult, *hcloud.Response, error)
	Poweron(ctx context.Context, server *hcloud.Server) (*hcloud.Action, *hcloud.Response, error)
	Shutdown(ctx context.Context, server *hcloud.Server) (*hcloud.Action, *hcloud.Response, error)
	DeleteWithResult(ctx context.Context, server *hcloud.Server) (*hcloud.ServerDeleteResult, *hcloud.Response, error)
}

// ActionClient is the part of the hcloud action client we use.
type ActionClient interface {
	GetByID(ctx context.Context, id int64) (*hcloud.Action, *hcloud.Response, error)
}

// JobProviderConfig is the configuration for the Hetzner Cloud job provider.
type JobProviderConfig struct {
	// Token is the Hetzner Cloud API token, required when the clients are not set.
	Token        string
	AppVersion   string
	ServerClient ServerClient
	ActionClient ActionClient
	// RequestTimeout is the timeout of every API call.
	RequestTimeout time.Duration
	Logger         log.Logger
}

func (c *JobProviderConfig) defaults() error {
	if c.ServerClient == nil || c.ActionClient == nil {
		if c.Token == "" {
			return fmt.Errorf("hcloud token is required")
		}
		if c.AppVersion == "" {
			c.AppVersion = "dev"
		}
		client := hcloud.NewClient(
			hcloud.WithApplication("activator", c.AppVersion),
			hcloud.WithToken(c.Token),
		)
		if c.ServerClient == nil {
			c.ServerClient = &client.Server
		}
		if c.ActionClient == nil {
			c.ActionClient = &client.Action
		}
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "provider.HCloud"})
	return nil
}

// JobProvider is the Hetzner Cloud implementation of provider.JobProvider.
//
// Databases are backed by servers, every operation is a Hetzner action and the
// action ID is the job ID.
type JobProvider struct {
	servers        ServerClient
	actions        ActionClient
	requestTimeout time.Duration
	logger         log.Logger
}

var _ provider.JobProvider = &JobProvider{}

// NewJobProvider creates a new Hetzner Cloud job provider.
func NewJobProvider(cfg JobProviderConfig) (*JobProvider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &JobProvider{
		servers:        cfg.ServerClient,
		actions:        cfg.ActionClient,
		requestTimeout: cfg.RequestTimeout,
		logger:         cfg.Logger,
	}, nil
}

// ServerName returns the server name used for a database.
func ServerName(envLabel, name string) string {
	n := name
	if envLabel != "" {
		n = envLabel + "-" + name
	}
	return strings.ToLower(strings.ReplaceAll(n, "_", "-"))
}

// Create creates the database server, stopped.
func (p *JobProvider) Create(ctx context.Context, res model.Resource, actx model.ActivationContext) (provider.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	opts := hcloud.ServerCreateOpts{
		Name:             ServerName(actx.EnvLabel, res.Name),
		ServerType:       &hcloud.ServerType{Name: res.Attribute(AttrServerType, defaultServerType)},
		Image:            &hcloud.Image{Name: res.Attribute(AttrImage, defaultImage)},
		UserData:         res.Attribute(AttrUserData, ""),
		StartAfterCreate: hcloud.Ptr(false),
		Labels: map[string]string{
			"activator-resource-id": strings.ToLower(res.ID),
		},
	}
	if loc := res.Attribute(AttrLocation, ""); loc != "" {
		opts.Location = &hcloud.Location{Name: loc}
	}

	p.logger.Infof("Creating server %s (%s, %s)", opts.Name, opts.ServerType.Name, opts.Image.Name)
	result, _, err := p.servers.Create(ctx, opts)
	if err != nil {
		return provider.Job{}, p.mapErr("create server", err)
	}
	if result.Server == nil || result.Action == nil {
		return provider.Job{}, fmt.Errorf("server creation of %s returned no server or action", opts.Name)
	}

	return provider.Job{
		ID:         strconv.FormatInt(result.Action.ID, 10),
		ExternalID: strconv.FormatInt(result.Server.ID, 10),
	}, nil
}

// Start powers on the database server.
func (p *JobProvider) Start(ctx context.Context, res model.Resource) (provider.Job, error) {
	return p.serverAction(ctx, res, "power on server", p.servers.Poweron)
}

// Stop shuts down the database server gracefully.
func (p *JobProvider) Stop(ctx context.Context, res model.Resource) (provider.Job, error) {
	return p.serverAction(ctx, res, "shutdown server", p.servers.Shutdown)
}

// Delete deletes the database server.
func (p *JobProvider) Delete(ctx context.Context, res model.Resource) (provider.Job, error) {
	return p.serverAction(ctx, res, opDeleteServer, func(ctx context.Context, server *hcloud.Server) (*hcloud.Action, *hcloud.Response, error) {
		result, resp, err := p.servers.DeleteWithResult(ctx, server)
		if err != nil || result == nil {
			return nil, resp, err
		}
		return result.Action, resp, nil
	})
}

// JobStatus returns the status of the action.
func (p *JobProvider) JobStatus(ctx context.Context, jobID string) (provider.JobStatus, error) {
	id, err := strconv.ParseInt(jobID, 10, 64)
	if err != nil {
		return provider.JobStatus{}, fmt.Errorf("invalid action id %q: %w", jobID, model.ErrNotValid)
	}

	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	action, _, err := p.actions.GetByID(ctx, id)
	if err != nil {
		return provider.JobStatus{}, p.mapErr("get action "+jobID, err)
	}
	if action == nil {
		return provider.JobStatus{}, fmt.Errorf("action %s: %w", jobID, model.ErrNotFound)
	}

	return toJobStatus(jobID, action), nil
}

type serverActionFunc func(ctx context.Context, server *hcloud.Server) (*hcloud.Action, *hcloud.Response, error)

func (p *JobProvider) serverAction(ctx context.Context, res model.Resource, op string, fn serverActionFunc) (provider.Job, error) {
	serverID, err := strconv.ParseInt(res.ExternalID, 10, 64)
	if err != nil {
		return provider.Job{}, fmt.Errorf("invalid server id %q: %w", res.ExternalID, model.ErrNotValid)
	}

	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	p.logger.Infof("Requesting %s %d", op, serverID)
	action, _, err := fn(ctx, &hcloud.Server{ID: serverID})
	if err != nil {
		return provider.Job{}, p.mapErr(op, err)
	}
	if action == nil {
		return provider.Job{}, fmt.Errorf("%s %d returned no action", op, serverID)
	}

	return provider.Job{
		ID:         strconv.FormatInt(action.ID, 10),
		ExternalID: res.ExternalID,
	}, nil
}

const opDeleteServer = "delete server"

// mapErr maps API errors to provider errors. A missing server is only already deleted
// when deleting it, on any other operation it's not found.
func (p *JobProvider) mapErr(op string, err error) error {
	switch {
	case hcloud.IsError(err, hcloud.ErrorCodeNotFound) && op == opDeleteServer:
		return fmt.Errorf("could not %s: %w: %w", op, provider.ErrAlreadyDeleted, err)
	case hcloud.IsError(err, hcloud.ErrorCodeNotFound):
		return fmt.Errorf("could not %s: %w: %w", op, model.ErrNotFound, err)
	case hcloud.IsError(err, hcloud.ErrorCodeLocked, hcloud.ErrorCodeConflict):
		return fmt.Errorf("could not %s: %w: %w", op, provider.ErrConcurrentJobs, err)
	case provider.IsTimeout(err):
		return &provider.TransportError{Op: op, Timeout: p.requestTimeout, Err: err}
	}
	return fmt.Errorf("could not %s: %w", op, err)
}

func toJobStatus(jobID string, a *hcloud.Action) provider.JobStatus {
	status := provider.JobStatus{ID: jobID, Progress: a.Progress}
	switch a.Status {
	case hcloud.ActionStatusSuccess:
		status.State = provider.JobStateFinished
	case hcloud.ActionStatusError:
		status.State = provider.JobStateError
		msg := a.ErrorMessage
		if a.ErrorCode != "" {
			msg = fmt.Sprintf("%s (%s)", msg, a.ErrorCode)
		}
		status.Messages = []string{msg}
	case hcloud.ActionStatusRunning:
		status.State = provider.JobStateProcessing
	default:
		status.State = provider.JobStateWaiting
	}
	return status
}
