package main

import (
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	v1 "github.com/tcbot-dev/tchelper/pkg/apis/config/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildchain"
	"github.com/tcbot-dev/tchelper/pkg/flags"
	"github.com/tcbot-dev/tchelper/pkg/flags/configflags"
	"github.com/tcbot-dev/tchelper/pkg/loginspection"
	"github.com/tcbot-dev/tchelper/pkg/teamcity"
)

// BuildServerFlags are shared by every command talking to build servers.
type BuildServerFlags struct {
	ConfigFlags        *configflags.ConfigFlags
	TeamCityFlags      *flags.TeamCityFlags
	CacheFlags         *flags.CacheFlags
	LogInspectionFlags *flags.LogInspectionFlags
}

func NewBuildServerFlags() *BuildServerFlags {
	return &BuildServerFlags{
		ConfigFlags:        configflags.NewConfigFlags(),
		TeamCityFlags:      flags.NewTeamCityFlags(),
		CacheFlags:         flags.NewCacheFlags(),
		LogInspectionFlags: flags.NewLogInspectionFlags(),
	}
}

func (f *BuildServerFlags) BindFlags(fs *pflag.FlagSet) {
	f.ConfigFlags.BindFlags(fs)
	f.TeamCityFlags.BindFlags(fs)
	f.CacheFlags.BindFlags(fs)
	f.LogInspectionFlags.BindFlags(fs)
}

// BuildServers holds one resolver per configured server. Close releases broker
// connections and client rate limiters.
type BuildServers struct {
	Config    *v1.HelperConfig
	Resolvers map[string]*buildchain.Resolver

	clients   []*teamcity.Client
	publisher *loginspection.KafkaPublisher
}

func (b *BuildServers) Close() {
	for _, c := range b.clients {
		c.Close()
	}
	if b.publisher != nil {
		b.publisher.Close()
	}
}

// serverIDs returns the selected server plus every server of the configuration file.
func (f *BuildServerFlags) serverIDs(cfg *v1.HelperConfig) []string {
	ids := []string{f.TeamCityFlags.ServerID}
	for id := range cfg.Servers {
		if id != f.TeamCityFlags.ServerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids[1:])
	return ids
}

func (f *BuildServerFlags) GetBuildServers() (*BuildServers, error) {
	cfg, err := f.ConfigFlags.GetConfig()
	if err != nil {
		return nil, err
	}

	cacheClient, err := f.CacheFlags.GetCacheClient()
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't get cache client")
	}

	servers := &BuildServers{
		Config:    cfg,
		Resolvers: map[string]*buildchain.Resolver{},
	}
	if f.LogInspectionFlags.Enabled() {
		servers.publisher, err = f.LogInspectionFlags.GetPublisher()
		if err != nil {
			return nil, errors.WithMessage(err, "couldn't connect to log inspection brokers")
		}
	}

	for _, id := range f.serverIDs(cfg) {
		client, err := f.TeamCityFlags.GetClient(id, cfg, cacheClient, f.CacheFlags)
		if err != nil {
			// only the selected server is mandatory
			if id == f.TeamCityFlags.ServerID && len(cfg.Servers) == 0 {
				servers.Close()
				return nil, err
			}
			log.WithError(err).WithField("server", id).Warning("skipping server")
			continue
		}

		servers.clients = append(servers.clients, client)

		var inspector buildchain.LogInspector
		if servers.publisher != nil {
			inspector = f.LogInspectionFlags.GetInspector(id, servers.publisher)
		}
		servers.Resolvers[id] = buildchain.NewResolver(client, f.TeamCityFlags.ResolverOptions(inspector)...)
		log.WithFields(log.Fields{
			"server": id,
			"url":    client.BaseURL,
		}).Info("configured build server")
	}

	if len(servers.Resolvers) == 0 {
		servers.Close()
		return nil, errors.New("no build server configured, set --teamcity-url or list servers in --config")
	}
	return servers, nil
}

// Resolver returns the resolver of serverID, or of the selected server when empty.
func (b *BuildServers) Resolver(f *BuildServerFlags, serverID string) (*buildchain.Resolver, error) {
	if serverID == "" {
		serverID = f.TeamCityFlags.ServerID
	}
	r, ok := b.Resolvers[serverID]
	if !ok {
		return nil, errors.Errorf("unknown build server %q", serverID)
	}
	return r, nil
}
