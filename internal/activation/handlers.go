package activation

import (
	"strings"
	"time"

	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/provider"
	"github.com/slok/activator/internal/storage"
)

// Resource attributes set by the handlers before creating the resources.
const (
	// AttrProviderName is the name used for the resource on the provider.
	AttrProviderName = "provider_name"
	// AttrURI is the route uri.
	AttrURI = "uri"
)

// Suggested timeouts of the database jobs.
const (
	DatabaseActivateTimeout = 20 * time.Minute
	DatabaseStepTimeout     = 10 * time.Minute
	// ManagedServiceTimeout is the suggested timeout of the managed service jobs.
	ManagedServiceTimeout = 10 * time.Minute
)

// HandlerConfig is the configuration shared by the synchronous concrete handlers.
type HandlerConfig struct {
	Provider   provider.Provider
	Repository storage.Repository
	Logger     log.Logger
}

// JobHandlerDeps is the configuration shared by the asynchronous concrete handlers.
type JobHandlerDeps struct {
	Provider     provider.JobProvider
	ProviderName string
	Repository   storage.Repository
	Logger       log.Logger
}

// NewOrganizationHandler returns the organization handler, organizations are only activated.
func NewOrganizationHandler(cfg HandlerConfig) (*SyncHandler, error) {
	return NewSyncHandler(SyncHandlerConfig{
		Kind:        model.ResourceKindOrganization,
		DisplayName: "Organization",
		Steps:       []model.Step{model.StepActivate},
		Provider:    cfg.Provider,
		Repository:  cfg.Repository,
		Logger:      cfg.Logger,
	})
}

// NewSpaceHandler returns the space handler. The space provider name is derived from the
// environment it is activated for.
func NewSpaceHandler(cfg HandlerConfig) (*SyncHandler, error) {
	return NewSyncHandler(SyncHandlerConfig{
		Kind:        model.ResourceKindSpace,
		DisplayName: "Space",
		Steps:       []model.Step{model.StepActivate, model.StepDelete},
		Provider:    cfg.Provider,
		Repository:  cfg.Repository,
		Prepare: func(res *model.Resource, actx model.ActivationContext) {
			setAttribute(res, AttrProviderName, envScoped(actx.EnvLabel, res.Name))
		},
		Logger: cfg.Logger,
	})
}

// NewRouteHandler returns the route handler, the route uri is prefixed with the environment.
func NewRouteHandler(cfg HandlerConfig) (*SyncHandler, error) {
	return NewSyncHandler(SyncHandlerConfig{
		Kind:        model.ResourceKindRoute,
		DisplayName: "Route",
		Steps:       []model.Step{model.StepActivate, model.StepDelete},
		Provider:    cfg.Provider,
		Repository:  cfg.Repository,
		Prepare: func(res *model.Resource, actx model.ActivationContext) {
			setAttribute(res, AttrURI, envScoped(actx.EnvLabel, res.Attribute(AttrURI, res.Name)))
		},
		Logger: cfg.Logger,
	})
}

// NewUserProvidedServiceHandler returns the user provided service handler.
func NewUserProvidedServiceHandler(cfg HandlerConfig) (*SyncHandler, error) {
	return NewSyncHandler(SyncHandlerConfig{
		Kind:        model.ResourceKindUserProvidedService,
		DisplayName: "User provided service",
		Steps:       []model.Step{model.StepActivate, model.StepDelete},
		Provider:    cfg.Provider,
		Repository:  cfg.Repository,
		Logger:      cfg.Logger,
	})
}

// NewAppHandler returns the app handler, apps go through all the steps.
func NewAppHandler(cfg HandlerConfig) (*SyncHandler, error) {
	return NewSyncHandler(SyncHandlerConfig{
		Kind:        model.ResourceKindApp,
		DisplayName: "App",
		Provider:    cfg.Provider,
		Repository:  cfg.Repository,
		Logger:      cfg.Logger,
	})
}

// NewManagedServiceHandler returns the managed service handler, service instances are
// created and deleted as provider jobs.
func NewManagedServiceHandler(cfg JobHandlerDeps) (*JobHandler, error) {
	return NewJobHandler(JobHandlerConfig{
		Kind:         model.ResourceKindManagedService,
		DisplayName:  "Managed service",
		Steps:        []model.Step{model.StepActivate, model.StepDelete},
		Provider:     cfg.Provider,
		ProviderName: cfg.ProviderName,
		Repository:   cfg.Repository,
		Timeouts: map[model.Step]time.Duration{
			model.StepActivate: ManagedServiceTimeout,
			model.StepDelete:   ManagedServiceTimeout,
		},
		Prepare: func(res *model.Resource, actx model.ActivationContext) {
			setAttribute(res, AttrProviderName, envScoped(actx.EnvLabel, res.Name))
		},
		Logger: cfg.Logger,
	})
}

// NewDatabaseHandler returns the database handler, all database steps are provider jobs.
func NewDatabaseHandler(cfg JobHandlerDeps) (*JobHandler, error) {
	return NewJobHandler(JobHandlerConfig{
		Kind:         model.ResourceKindDatabase,
		DisplayName:  "Database",
		Provider:     cfg.Provider,
		ProviderName: cfg.ProviderName,
		Repository:   cfg.Repository,
		Timeouts: map[model.Step]time.Duration{
			model.StepActivate:   DatabaseActivateTimeout,
			model.StepFirstStart: DatabaseStepTimeout,
			model.StepStart:      DatabaseStepTimeout,
			model.StepStop:       DatabaseStepTimeout,
			model.StepDelete:     DatabaseStepTimeout,
		},
		Prepare: func(res *model.Resource, actx model.ActivationContext) {
			setAttribute(res, AttrProviderName, envScoped(actx.EnvLabel, res.Name))
		},
		Logger: cfg.Logger,
	})
}

// envScoped prefixes name with the environment label, names already prefixed are kept.
func envScoped(env, name string) string {
	if env == "" || strings.HasPrefix(name, env+"-") {
		return name
	}
	return env + "-" + name
}

func setAttribute(res *model.Resource, key, value string) {
	if res.Attributes == nil {
		res.Attributes = map[string]string{}
	}
	res.Attributes[key] = value
}
