package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	v1 "github.com/tcbot-dev/tchelper/pkg/apis/config/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildhistory"
	"github.com/tcbot-dev/tchelper/pkg/flags"
)

type HistoryFlags struct {
	BuildServerFlags *BuildServerFlags
	DBFlags          *flags.PostgresFlags

	Suite     string
	Branch    string
	Threshold float64
}

func NewHistoryCommand() *cobra.Command {
	f := &HistoryFlags{
		BuildServerFlags: NewBuildServerFlags(),
		DBFlags:          flags.NewPostgresDatabaseFlags(),
		Branch:           teamcityv1.DefaultBranch,
		Threshold:        buildhistory.PassRateThreshold,
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print per day chain results and suites with a low pass rate",
		Long: `Replays the finished builds of one suite (--suite) or of every history target in
the configuration file, printing a table of build problems and failed tests per day followed
by the suites whose pass rate is below the threshold.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := f.BuildServerFlags.GetBuildServers()
			if err != nil {
				return errors.WithMessage(err, "couldn't configure build servers")
			}
			defer servers.Close()

			targets := servers.Config.History
			if f.Suite != "" {
				targets = []v1.HistoryTarget{{
					Server: f.BuildServerFlags.TeamCityFlags.ServerID,
					Suite:  f.Suite,
					Branch: f.Branch,
				}}
			}
			if len(targets) == 0 {
				return errors.New("no history targets, pass --suite or list them in --config")
			}

			history := buildhistory.NewBuildMetricsHistory()
			for _, target := range targets {
				resolver, err := servers.Resolver(f.BuildServerFlags, target.Server)
				if err != nil {
					return err
				}
				if err := buildhistory.Collect(context.Background(), history, resolver, target.Suite, target.Branch); err != nil {
					return errors.WithMessagef(err, "error collecting history of %s", target.Suite)
				}
			}

			if err := buildhistory.WriteTable(os.Stdout, history); err != nil {
				return err
			}
			if err := buildhistory.WriteLowPassRates(os.Stdout, history, f.Threshold); err != nil {
				return err
			}

			if f.DBFlags.Enabled() {
				dbc, err := f.DBFlags.GetDBClient()
				if err != nil {
					return errors.WithMessage(err, "couldn't get DB client")
				}
				if err := dbc.StoreHistory(history); err != nil {
					return errors.WithMessage(err, "couldn't store history")
				}
				log.Info("history stored")
			}
			return nil
		},
	}

	f.BuildServerFlags.BindFlags(cmd.Flags())
	f.DBFlags.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&f.Suite, "suite", f.Suite, "Suite to collect; overrides the history targets of the configuration file")
	cmd.Flags().StringVar(&f.Branch, "branch", f.Branch, "Branch of --suite")
	cmd.Flags().Float64Var(&f.Threshold, "threshold", f.Threshold, "Pass rate below which a suite is reported")
	return cmd
}
