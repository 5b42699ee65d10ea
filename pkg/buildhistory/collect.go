package buildhistory

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tcbot-dev/tchelper/pkg/buildchain"
)

const dayKeyLayout = "20060102"

// Collect records one chain result per day for the finished builds of suiteID on branch,
// and folds every dependent suite's outcome into its pass rate. Days that already have a
// result are left untouched. A malformed finish date aborts collection.
func Collect(ctx context.Context, history *BuildMetricsHistory, resolver *buildchain.Resolver, suiteID, branch string) error {
	server := resolver.Server()
	logger := log.WithFields(log.Fields{
		"server": server.ServerID(),
		"suite":  suiteID,
		"branch": branch,
	})

	suiteHistory := history.History(SuiteInBranch{ID: suiteID, Branch: branch})

	refs, err := server.FinishedBuildsIncludingFailed(ctx, suiteID, branch)
	if err != nil {
		return errors.Wrapf(err, "error listing finished builds of %s on %s", suiteID, branch)
	}
	logger.Infof("collecting history from %d finished builds", len(refs))

	for _, ref := range refs {
		build, err := server.BuildResult(ctx, ref)
		if err != nil || build == nil {
			logger.WithError(err).WithField("href", ref.Href).Debug("skipping unresolved build")
			continue
		}

		finished, err := build.FinishTime()
		if err != nil {
			return err
		}
		day := finished.Format(dayKeyLayout)
		if suiteHistory.Has(day) {
			continue
		}

		chain := resolver.ResolveDirect(ctx, build)
		for _, suite := range chain.Suites {
			history.AddSuiteResult(server.ServerID(), suite.SuiteName, suite.Succeeded())
		}
		suiteHistory.Add(day, chain)
		logger.WithField("day", day).Debugf("recorded chain of build %d", build.ID)
	}

	return nil
}
