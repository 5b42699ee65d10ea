package configflags

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	v1 "github.com/tcbot-dev/tchelper/pkg/apis/config/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

// ConfigFlags holds the location of the helper configuration file.
type ConfigFlags struct {
	Path string
}

func NewConfigFlags() *ConfigFlags {
	return &ConfigFlags{}
}

func (f *ConfigFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Path,
		"config",
		f.Path,
		"Configuration file listing servers, suite contacts and history targets")
}

func (f *ConfigFlags) GetConfig() (*v1.HelperConfig, error) {
	var helperConfig v1.HelperConfig

	if f.Path != "" {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, errors.WithMessage(err, "could not load config")
		}
		if err := yaml.Unmarshal(data, &helperConfig); err != nil {
			return nil, errors.WithMessage(err, "couldn't unmarshal config")
		}
	}

	for i := range helperConfig.History {
		target := &helperConfig.History[i]
		if target.Suite == "" {
			return nil, errors.Errorf("history target %d has no suite", i)
		}
		if target.Branch == "" {
			target.Branch = teamcityv1.DefaultBranch
		}
		if target.Server != "" {
			if _, ok := helperConfig.Servers[target.Server]; !ok {
				return nil, errors.Errorf("history target %s refers to unknown server %q", target.Suite, target.Server)
			}
		}
	}

	return &helperConfig, nil
}
