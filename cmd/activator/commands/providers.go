package commands

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/activator/internal/activation"
	"github.com/slok/activator/internal/log"
	"github.com/slok/activator/internal/provider"
	"github.com/slok/activator/internal/provider/docker"
	"github.com/slok/activator/internal/provider/fake"
	"github.com/slok/activator/internal/provider/hcloud"
	"github.com/slok/activator/internal/storage"
)

const (
	providerFake   = "fake"
	providerDocker = "docker"
	providerHCloud = "hcloud"
)

// providerFlags selects the provisioning adapters of the handlers.
//
// Fake providers keep their resources in memory, they only live for the
// duration of the command.
type providerFlags struct {
	appProvider  string
	dbProvider   string
	hcloudToken  string
	fakeJobPolls int
}

func (p *providerFlags) register(cmd *kingpin.CmdClause) {
	cmd.Flag("app-provider", "Provider of the apps (fake, docker).").Default(providerFake).EnumVar(&p.appProvider, providerFake, providerDocker)
	cmd.Flag("db-provider", "Provider of the databases (fake, hcloud).").Default(providerFake).EnumVar(&p.dbProvider, providerFake, providerHCloud)
	cmd.Flag("hcloud-token", "Hetzner Cloud API token, required by the hcloud provider.").Envar("HCLOUD_TOKEN").StringVar(&p.hcloudToken)
	cmd.Flag("fake-job-polls", "Status queries the fake asynchronous jobs need to finish.").Default("3").IntVar(&p.fakeJobPolls)
}

// registry builds the handlers of every resource kind with the selected providers.
func (p providerFlags) registry(repo storage.Repository, version string, logger log.Logger) (*activation.Registry, error) {
	platform, err := fake.NewProvider(fake.ProviderConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create platform provider: %w", err)
	}

	var apps provider.Provider = platform
	if p.appProvider == providerDocker {
		apps, err = docker.NewProvider(docker.ProviderConfig{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create docker provider: %w", err)
		}
	}

	services, err := fake.NewJobProvider(fake.JobProviderConfig{PollsToFinish: p.fakeJobPolls, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create service provider: %w", err)
	}

	var dbs provider.JobProvider = services
	dbProviderName := providerFake
	if p.dbProvider == providerHCloud {
		dbs, err = hcloud.NewJobProvider(hcloud.JobProviderConfig{
			Token:      p.hcloudToken,
			AppVersion: version,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create hcloud provider: %w", err)
		}
		dbProviderName = providerHCloud
	}

	syncCfg := func(prov provider.Provider) activation.HandlerConfig {
		return activation.HandlerConfig{Provider: prov, Repository: repo, Logger: logger}
	}
	var handlers []activation.Handler
	for _, newHandler := range []func(activation.HandlerConfig) (*activation.SyncHandler, error){
		activation.NewOrganizationHandler,
		activation.NewSpaceHandler,
		activation.NewRouteHandler,
		activation.NewUserProvidedServiceHandler,
	} {
		h, err := newHandler(syncCfg(platform))
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}

	appHandler, err := activation.NewAppHandler(syncCfg(apps))
	if err != nil {
		return nil, err
	}
	serviceHandler, err := activation.NewManagedServiceHandler(activation.JobHandlerDeps{
		Provider:     services,
		ProviderName: providerFake,
		Repository:   repo,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	dbHandler, err := activation.NewDatabaseHandler(activation.JobHandlerDeps{
		Provider:     dbs,
		ProviderName: dbProviderName,
		Repository:   repo,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	handlers = append(handlers, appHandler, serviceHandler, dbHandler)

	return activation.NewRegistry(handlers...)
}
