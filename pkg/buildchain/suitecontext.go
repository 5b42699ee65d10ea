package buildchain

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

// buildSuiteContext loads the tests and problems of build and enriches them according to
// opts. Log inspection and schedule lookups are best effort.
func (r *Resolver) buildSuiteContext(ctx context.Context, build *teamcityv1.Build, opts Options) (*chainv1.SuiteRunContext, error) {
	suite, err := r.server.LoadTestsAndProblems(ctx, build)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading tests and problems for build %d", build.ID)
	}
	if suite == nil {
		return nil, errors.Errorf("no tests and problems returned for build %d", build.ID)
	}

	if opts.ProcessLogs && needsLogInspection(suite) {
		r.inspectBuildLog(ctx, suite)
	}

	if opts.IncludeScheduled {
		r.attachScheduledCounts(ctx, build, suite)
	}

	if opts.ContactOwners != nil {
		if owner, ok := opts.ContactOwners[suite.SuiteID]; ok {
			suite.ContactPerson = owner
		}
	}

	return suite, nil
}

func needsLogInspection(suite *chainv1.SuiteRunContext) bool {
	return suite.HasJvmCrashProblem() || suite.HasTimeoutProblem() || suite.HasOomeProblem()
}

// inspectBuildLog runs the log inspection for one suite and waits for it. Failures,
// including panics in the inspector, are logged and otherwise ignored.
func (r *Resolver) inspectBuildLog(ctx context.Context, suite *chainv1.SuiteRunContext) {
	if r.logInspector == nil {
		return
	}

	started := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- errors.Errorf("log inspection panicked: %v", rec)
			}
		}()
		done <- r.logInspector.InspectBuildLog(ctx, suite)
	}()

	logger := log.WithFields(log.Fields{
		"suite":   suite.SuiteID,
		"buildId": suite.BuildID,
	})
	if err := <-done; err != nil {
		logger.WithError(err).Warning("log inspection failed")
	}
	logger.Infof("log inspection required %dms", time.Since(started).Milliseconds())
}

// attachScheduledCounts records how many builds of the same type and branch are running
// and queued.
func (r *Resolver) attachScheduledCounts(ctx context.Context, build *teamcityv1.Build, suite *chainv1.SuiteRunContext) {
	branch := build.BranchName
	if branch == "" {
		branch = teamcityv1.DefaultBranch
	}
	buildTypeID := build.SuiteID()

	running, err := r.server.RunningBuilds(ctx, buildTypeID, branch)
	if err != nil {
		log.WithError(err).WithField("suite", buildTypeID).Warning("could not count running builds")
	}
	suite.RunningBuildCount = len(running)

	queued := r.countQueued(ctx, buildTypeID, branch)
	// builds queued before branch tagging was attached to queue entries only show up under
	// the default branch
	if branch == teamcityv1.MasterBranch && queued == 0 {
		queued = r.countQueued(ctx, buildTypeID, teamcityv1.DefaultBranch)
	}
	suite.QueuedBuildCount = queued
}

func (r *Resolver) countQueued(ctx context.Context, buildTypeID, branch string) int {
	queued, err := r.server.QueuedBuilds(ctx, buildTypeID, branch)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"suite":  buildTypeID,
			"branch": branch,
		}).Warning("could not count queued builds")
	}
	return len(queued)
}
