package buildchain

import (
	"context"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

// Server is the build server as seen by chain resolution. Implementations must be safe for
// concurrent use; resolution calls them from many goroutines at once.
type Server interface {
	// ServerID identifies the server, used to qualify suite names across servers.
	ServerID() string

	MostRecentBuildIncludingFailedDependencies(ctx context.Context, suiteID, branch string) (*teamcityv1.BuildRef, error)

	// BuildResult returns the full build behind ref. An error means the build could not be
	// resolved.
	BuildResult(ctx context.Context, ref teamcityv1.BuildRef) (*teamcityv1.Build, error)

	// LatestRebuildOf returns the most recent rebuild of ref, or a stub when there is none.
	LatestRebuildOf(ctx context.Context, ref teamcityv1.BuildRef) teamcityv1.BuildRef

	LoadTestsAndProblems(ctx context.Context, build *teamcityv1.Build) (*chainv1.SuiteRunContext, error)
	RunningBuilds(ctx context.Context, buildTypeID, branch string) ([]teamcityv1.BuildRef, error)
	QueuedBuilds(ctx context.Context, buildTypeID, branch string) ([]teamcityv1.BuildRef, error)
	Problems(ctx context.Context, href string) ([]teamcityv1.ProblemOccurrence, error)
	FinishedBuildsIncludingFailed(ctx context.Context, suiteID, branch string) ([]teamcityv1.BuildRef, error)
}

// LogInspector requests a deeper look at the log of a suite's build. It is invoked for
// builds that crashed, timed out or ran out of memory, and returns once the request has
// completed.
type LogInspector interface {
	InspectBuildLog(ctx context.Context, suite *chainv1.SuiteRunContext) error
}

// Options controls how much enrichment a chain resolution performs.
type Options struct {
	// IncludeLatestRebuild replaces each resolved build with its most recent rebuild.
	IncludeLatestRebuild bool
	// ProcessLogs requests log inspection for crashed, timed out or OOM suites.
	ProcessLogs bool
	// IncludeScheduled attaches running and queued build counts.
	IncludeScheduled bool
	// ContactOwners, when non-nil, annotates suites and orders the chain by owner.
	ContactOwners chainv1.ContactOwners
}
