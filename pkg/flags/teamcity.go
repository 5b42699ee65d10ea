package flags

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/tcbot-dev/tchelper/pkg/apis/cache"
	v1 "github.com/tcbot-dev/tchelper/pkg/apis/config/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildchain"
	"github.com/tcbot-dev/tchelper/pkg/teamcity"
)

const DefaultServerID = "public"

// TeamCityFlags select the build server to talk to.
type TeamCityFlags struct {
	ServerID       string
	URL            string
	Token          string
	MaxConcurrency  int
	HistoryLimit    int
	RequestInterval time.Duration
}

func NewTeamCityFlags() *TeamCityFlags {
	return &TeamCityFlags{
		ServerID:       DefaultServerID,
		MaxConcurrency: 10,
		HistoryLimit:   teamcity.DefaultHistoryLimit,
	}
}

func (f *TeamCityFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ServerID, "server", f.ServerID, "Server id, looked up in the configuration file when --teamcity-url is not set")
	fs.StringVar(&f.URL, "teamcity-url", f.URL, "Root URL of the TeamCity server")
	fs.StringVar(&f.Token, "teamcity-token", os.Getenv("TEAMCITY_TOKEN"), "TeamCity access token")
	fs.IntVar(&f.MaxConcurrency, "max-concurrency", f.MaxConcurrency, "Number of builds resolved concurrently")
	fs.IntVar(&f.HistoryLimit, "history-limit", f.HistoryLimit, "Maximum number of finished builds read per history target")
	fs.DurationVar(&f.RequestInterval, "request-interval", f.RequestInterval, "Minimum interval between requests to a server, 0 for no limit")
}

// GetClient returns a client for serverID. The URL comes from --teamcity-url when serverID
// is the selected server, otherwise from cfg; a server's tokenEnv overrides the token.
func (f *TeamCityFlags) GetClient(serverID string, cfg *v1.HelperConfig, c cache.Cache, cacheFlags *CacheFlags) (*teamcity.Client, error) {
	if serverID == "" {
		serverID = f.ServerID
	}

	url, token := "", f.Token
	if serverID == f.ServerID {
		url = f.URL
	}
	if cfg != nil {
		if server, ok := cfg.Servers[serverID]; ok {
			if url == "" {
				url = server.URL
			}
			if server.TokenEnv != "" {
				token = os.Getenv(server.TokenEnv)
			}
		}
	}
	if url == "" {
		return nil, errors.Errorf("no URL configured for server %q", serverID)
	}

	opts := []teamcity.Option{
		teamcity.WithServerURL(url),
		teamcity.WithToken(token),
		teamcity.WithHistoryLimit(f.HistoryLimit),
		teamcity.WithRequestInterval(f.RequestInterval),
	}
	if c != nil {
		opts = append(opts, teamcity.WithCache(c, cacheFlags.BuildTTL))
	}
	return teamcity.New(serverID, opts...), nil
}

func (f *TeamCityFlags) ResolverOptions(inspector buildchain.LogInspector) []buildchain.ResolverOption {
	opts := []buildchain.ResolverOption{buildchain.WithMaxConcurrency(f.MaxConcurrency)}
	if inspector != nil {
		opts = append(opts, buildchain.WithLogInspector(inspector))
	}
	return opts
}
