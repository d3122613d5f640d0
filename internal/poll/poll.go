package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/activator/internal/activation"
	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/metrics"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
	"github.com/slok/activator/internal/storage"
)

// DefaultTimeout is the maximum time a record is polled until it completes.
const DefaultTimeout = 30 * time.Minute

// Config is the configuration of the poller.
type Config struct {
	Repository storage.Repository
	// Timeout is the ceiling of every wait, it's the same for all the records.
	Timeout time.Duration
	Metrics metrics.Recorder
	Logger  log.Logger
	// Sleep and Now replace the wall clock, used on tests.
	Sleep func(d time.Duration)
	Now   func() time.Time
}

func (c *Config) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "poll.Poller"})
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Poller waits for in progress records to complete.
type Poller struct {
	repo    storage.Repository
	timeout time.Duration
	metrics metrics.Recorder
	logger  log.Logger
	sleep   func(d time.Duration)
	now     func() time.Time
}

// New returns a new poller.
func New(cfg Config) (*Poller, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Poller{
		repo:    cfg.Repository,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		sleep:   cfg.Sleep,
		now:     cfg.Now,
	}, nil
}

// WaitForCompletion queries the handler for the record status every poll interval until the
// record completes, blocking the caller meanwhile. The returned record is never nil.
//
// A failed record, a query error or reaching the timeout return an error wrapping model.ErrFatal.
// On a failed record or a timeout the resource is left in unknown state. The context is passed to the handler
// but it doesn't stop the wait.
func (p *Poller) WaitForCompletion(ctx context.Context, h activation.Handler, rec *progress.Record, resourceID string, pollInterval time.Duration) (*progress.Record, error) {
	logger := p.logger.WithValues(log.Kv{"resource-id": resourceID, "record-id": rec.ID()})

	start := p.now()
	current := rec
	lastErrMsg := rec.ErrorMessage()
	for !current.IsComplete() {
		if p.now().Sub(start) >= p.timeout {
			return p.timedOut(ctx, logger, current, resourceID, lastErrMsg)
		}

		next, err := h.QueryStatus(ctx, current)
		p.metrics.ObservePollIteration(ctx)
		if err != nil {
			logger.Errorf("Could not query status: %s", err)
			failed := current.Clone()
			failed.Fail(err.Error())
			return failed, fmt.Errorf("could not query status of %q: %v: %w", current.Title(), err, model.ErrFatal)
		}
		if next == nil {
			return current, fmt.Errorf("no status returned for %q: %w", current.Title(), model.ErrFatal)
		}

		current = next
		if msg := current.ErrorMessage(); msg != "" {
			lastErrMsg = msg
		}
		if current.IsComplete() {
			break
		}

		logger.Debugf("%s is %s (%d%%)", current.Title(), current.Status(), current.Percent())
		p.sleep(pollInterval)
	}

	if current.HasFailed() {
		if err := p.markUnknown(ctx, resourceID); err != nil {
			return current, fmt.Errorf("%s, %w", current.ErrorMessage(), err)
		}
		return current, fmt.Errorf("%s: %w", current.ErrorMessage(), model.ErrFatal)
	}

	logger.Debugf("%s completed in %s", current.Title(), p.now().Sub(start))
	return current, nil
}

func (p *Poller) timedOut(ctx context.Context, logger log.Logger, rec *progress.Record, resourceID, lastErrMsg string) (*progress.Record, error) {
	p.metrics.ObservePollTimeout(ctx)

	msg := fmt.Sprintf("timeout after %s waiting for %q", p.timeout, rec.Title())
	if lastErrMsg != "" {
		msg = fmt.Sprintf("%s, last error: %s", msg, lastErrMsg)
	}
	logger.Errorf("%s", msg)

	failed := rec.Clone()
	failed.Fail(msg)

	if err := p.markUnknown(ctx, resourceID); err != nil {
		return failed, fmt.Errorf("%s, %w", msg, err)
	}

	return failed, fmt.Errorf("%s: %w", msg, model.ErrFatal)
}

func (p *Poller) markUnknown(ctx context.Context, resourceID string) error {
	res, err := p.repo.GetResource(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("could not get resource: %v: %w", err, model.ErrFatal)
	}
	if res.IsUnknown() {
		return nil
	}
	res.State = model.LifecycleStateUnknown
	if _, err := p.repo.UpdateResource(ctx, *res); err != nil {
		return fmt.Errorf("could not set resource unknown state: %v: %w", err, model.ErrFatal)
	}
	return nil
}
