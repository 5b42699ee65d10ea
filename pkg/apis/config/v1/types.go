package v1

import (
	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
)

type HelperConfig struct {
	// Servers maps a server id to the root URL of a TeamCity server.
	Servers map[string]ServerConfig `yaml:"servers"`

	// Contacts maps a server id to the owners of its suites, keyed by suite id.
	Contacts map[string]map[string]string `yaml:"contacts,omitempty"`

	// History lists the suites tracked by the history command.
	History []HistoryTarget `yaml:"history,omitempty"`
}

type ServerConfig struct {
	URL string `yaml:"url"`

	// TokenEnv names the environment variable holding the access token of this server.
	TokenEnv string `yaml:"tokenEnv,omitempty"`
}

type HistoryTarget struct {
	Server string `yaml:"server"`
	Suite  string `yaml:"suite"`
	Branch string `yaml:"branch"`
}

// ContactOwners returns the suite owners of serverID. A server without configured
// contacts gets an empty, non-nil mapping.
func (c *HelperConfig) ContactOwners(serverID string) chainv1.ContactOwners {
	owners := chainv1.ContactOwners{}
	for suite, owner := range c.Contacts[serverID] {
		owners[suite] = owner
	}
	return owners
}
