package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildchain"
)

type ChainFlags struct {
	BuildServerFlags *BuildServerFlags

	Branch           string
	Rebuild          bool
	ProcessLogs      bool
	IncludeScheduled bool
	Contacts         bool
	Output           string
}

func NewChainCommand() *cobra.Command {
	f := &ChainFlags{
		BuildServerFlags: NewBuildServerFlags(),
		Branch:           teamcityv1.DefaultBranch,
	}

	cmd := &cobra.Command{
		Use:   "chain SUITE_ID",
		Short: "Resolve the most recent build chain of a suite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := f.BuildServerFlags.GetBuildServers()
			if err != nil {
				return errors.WithMessage(err, "couldn't configure build servers")
			}
			defer servers.Close()

			serverID := f.BuildServerFlags.TeamCityFlags.ServerID
			resolver, err := servers.Resolver(f.BuildServerFlags, serverID)
			if err != nil {
				return err
			}

			opts := buildchain.Options{
				IncludeLatestRebuild: f.Rebuild,
				ProcessLogs:          f.ProcessLogs,
				IncludeScheduled:     f.IncludeScheduled,
			}
			if f.Contacts {
				opts.ContactOwners = servers.Config.ContactOwners(serverID)
			}

			chain, found := resolver.LoadChainContext(context.Background(), args[0], f.Branch, opts)
			if !found {
				return errors.Errorf("no build of %s found on %s", args[0], f.Branch)
			}
			return writeChain(os.Stdout, chain, f.Output)
		},
	}

	f.BuildServerFlags.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&f.Branch, "branch", f.Branch, "Branch to resolve the chain on")
	cmd.Flags().BoolVar(&f.Rebuild, "rebuild", false, "Use the latest rebuild of every suite")
	cmd.Flags().BoolVar(&f.ProcessLogs, "process-logs", false, "Request log inspection for crashed, timed out or out of memory suites")
	cmd.Flags().BoolVar(&f.IncludeScheduled, "scheduled", false, "Include running and queued build counts")
	cmd.Flags().BoolVar(&f.Contacts, "contacts", false, "Annotate suites with their contact owner and order by it")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "", "Output format; available options are 'json'")
	return cmd
}

func writeChain(w io.Writer, chain *chainv1.ChainRunContext, output string) error {
	switch output {
	case "json":
		b, err := json.MarshalIndent(chain, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "":
	default:
		return errors.Errorf("invalid output format: %s", output)
	}

	if _, err := fmt.Fprintf(w, "%s: %d suites with build problems, %d failed tests\n",
		chain.SuiteName(), chain.BuildProblems(), chain.FailedTests()); err != nil {
		return err
	}
	for _, s := range chain.Suites {
		status := "OK"
		if !s.Succeeded() {
			status = "FAILED"
		}
		line := fmt.Sprintf("%s\t%s\tfailed tests: %d", s.SuiteName, status, s.FailedTests)
		if s.HasJvmCrashProblem() || s.HasTimeoutProblem() || s.HasOomeProblem() {
			line += "\tcrash/timeout/oome"
		}
		if s.RunningBuildCount > 0 || s.QueuedBuildCount > 0 {
			line += fmt.Sprintf("\trunning: %d queued: %d", s.RunningBuildCount, s.QueuedBuildCount)
		}
		if s.ContactPerson != "" {
			line += "\tcontact: " + s.ContactPerson
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
