package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/provider"
)

// Op is a provider operation errors can be injected on.
type Op string

const (
	OpCreate    Op = "create"
	OpStart     Op = "start"
	OpStop      Op = "stop"
	OpDelete    Op = "delete"
	OpJobStatus Op = "job-status"
)

type resourceState struct {
	name    string
	running bool
}

// faults holds one shot errors by operation.
type faults struct {
	errs map[Op][]error
}

func (f *faults) inject(op Op, err error) {
	if f.errs == nil {
		f.errs = map[Op][]error{}
	}
	f.errs[op] = append(f.errs[op], err)
}

func (f *faults) next(op Op) error {
	errs := f.errs[op]
	if len(errs) == 0 {
		return nil
	}
	f.errs[op] = errs[1:]
	return errs[0]
}

// ProviderConfig is the configuration for the fake provider.
type ProviderConfig struct {
	Logger log.Logger
}

func (c *ProviderConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "provider.Fake"})
	return nil
}

// Provider is a fake implementation of provider.Provider.
// It simulates resources on memory and completes every operation immediately.
type Provider struct {
	resources map[string]*resourceState
	faults    faults
	calls     int
	mu        sync.Mutex
	logger    log.Logger
}

var _ provider.Provider = &Provider{}

// NewProvider creates a new fake provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Provider{
		resources: map[string]*resourceState{},
		logger:    cfg.Logger,
	}, nil
}

// InjectError makes the next call of op fail with err.
func (p *Provider) InjectError(op Op, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults.inject(op, err)
}

// Calls returns the number of operations the provider received.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Create creates a resource.
func (p *Provider) Create(ctx context.Context, res model.Resource, actx model.ActivationContext) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if err := p.faults.next(OpCreate); err != nil {
		return "", err
	}

	id := externalID(res.Kind)
	p.resources[id] = &resourceState{name: res.Name}
	p.logger.Infof("Created %s %s as %s (%s)", res.Kind, res.Name, id, actx)

	return id, nil
}

// Start starts a resource.
func (p *Provider) Start(ctx context.Context, res model.Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if err := p.faults.next(OpStart); err != nil {
		return err
	}

	r, ok := p.resources[res.ExternalID]
	if !ok {
		return fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, model.ErrNotFound)
	}
	if r.running {
		return fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, provider.ErrAlreadyStarted)
	}
	r.running = true
	p.logger.Infof("Started %s %s", res.Kind, res.ExternalID)

	return nil
}

// Stop stops a resource.
func (p *Provider) Stop(ctx context.Context, res model.Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if err := p.faults.next(OpStop); err != nil {
		return err
	}

	r, ok := p.resources[res.ExternalID]
	if !ok {
		return fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, model.ErrNotFound)
	}
	if !r.running {
		return fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, provider.ErrAlreadyStopped)
	}
	r.running = false
	p.logger.Infof("Stopped %s %s", res.Kind, res.ExternalID)

	return nil
}

// Delete deletes a resource.
func (p *Provider) Delete(ctx context.Context, res model.Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if err := p.faults.next(OpDelete); err != nil {
		return err
	}

	if _, ok := p.resources[res.ExternalID]; !ok {
		return fmt.Errorf("%s %s: %w", res.Kind, res.ExternalID, provider.ErrAlreadyDeleted)
	}
	delete(p.resources, res.ExternalID)
	p.logger.Infof("Deleted %s %s", res.Kind, res.ExternalID)

	return nil
}

func externalID(kind model.ResourceKind) string {
	return fmt.Sprintf("fake-%s-%s", kind, strings.ToLower(ulid.Make().String()))
}
