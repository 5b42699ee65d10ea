package v1

import (
	"time"

	"github.com/pkg/errors"
)

// DefaultBranch is the pseudo branch name TeamCity uses for builds of the default branch.
const DefaultBranch = "<default>"

// MasterBranch is the canonical full name of the master branch.
const MasterBranch = "refs/heads/master"

// TimestampLayout is the layout of TeamCity REST timestamps, e.g. 20170803T153012+0300.
const TimestampLayout = "20060102T150405-0700"

// Problem occurrence types reported by the build server.
const (
	ProblemFailedTests           = "TC_FAILED_TESTS"
	ProblemSnapshotDepErrorBuild = "SNAPSHOT_DEPENDENCY_ERROR_BUILD_PROCEEDS_TYPE"
	ProblemBuildFailureOnMessage = "BuildFailureOnMessage"
	ProblemExecutionTimeout      = "TC_EXECUTION_TIMEOUT"
	ProblemJvmCrash              = "TC_JVM_CRASH"
	ProblemOutOfMemory           = "TC_OOME"
	ProblemExitCode              = "TC_EXIT_CODE"
)

// BuildRef is a short reference to a build as returned in build lists and snapshot
// dependency lists.
type BuildRef struct {
	ID          int64  `json:"id,omitempty"`
	BuildTypeID string `json:"buildTypeId,omitempty"`
	Number      string `json:"number,omitempty"`
	Status      string `json:"status,omitempty"`
	State       string `json:"state,omitempty"`
	BranchName  string `json:"branchName,omitempty"`
	Href        string `json:"href,omitempty"`
	WebURL      string `json:"webUrl,omitempty"`

	// FakeStub marks a placeholder for a build that could not be resolved.
	FakeStub bool `json:"-"`
}

// StubBuildRef returns a placeholder reference. Stubs never reach resolved output.
func StubBuildRef() BuildRef {
	return BuildRef{FakeStub: true}
}

func (r BuildRef) IsFakeStub() bool {
	return r.FakeStub
}

// BuildType is the configuration a build was executed from. Its ID is the suite id.
type BuildType struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId,omitempty"`
}

// ProblemOccurrencesRef points at the problem list of a build.
type ProblemOccurrencesRef struct {
	Href  string `json:"href,omitempty"`
	Count int    `json:"count,omitempty"`
}

// TestOccurrencesRef is the test summary attached to a build.
type TestOccurrencesRef struct {
	Href    string `json:"href,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Passed  *int   `json:"passed,omitempty"`
	Failed  *int   `json:"failed,omitempty"`
	Ignored *int   `json:"ignored,omitempty"`
	Muted   *int   `json:"muted,omitempty"`
}

type SnapshotDependencies struct {
	Count int        `json:"count,omitempty"`
	Build []BuildRef `json:"build,omitempty"`
}

// Build is the full result of one executed build. It is owned by the build server client
// and must be treated as read only.
type Build struct {
	BuildRef

	BuildType            BuildType              `json:"buildType"`
	StatusText           string                 `json:"statusText,omitempty"`
	QueuedDate           string                 `json:"queuedDate,omitempty"`
	StartDate            string                 `json:"startDate,omitempty"`
	FinishDate           string                 `json:"finishDate,omitempty"`
	SnapshotDependencies *SnapshotDependencies  `json:"snapshot-dependencies,omitempty"`
	ProblemOccurrences   *ProblemOccurrencesRef `json:"problemOccurrences,omitempty"`
	TestOccurrences      *TestOccurrencesRef    `json:"testOccurrences,omitempty"`
}

func (b *Build) SuiteID() string {
	if b.BuildType.ID != "" {
		return b.BuildType.ID
	}
	return b.BuildTypeID
}

func (b *Build) SuiteName() string {
	return b.BuildType.Name
}

func (b *Build) SnapshotDependenciesNonNil() []BuildRef {
	if b.SnapshotDependencies == nil {
		return []BuildRef{}
	}
	return b.SnapshotDependencies.Build
}

// FailedTests returns the failed test count from the test summary, zero when absent.
func (b *Build) FailedTests() int {
	if b.TestOccurrences == nil || b.TestOccurrences.Failed == nil {
		return 0
	}
	return *b.TestOccurrences.Failed
}

// FinishTime parses FinishDate, keeping the server's own zone offset.
func (b *Build) FinishTime() (time.Time, error) {
	t, err := time.Parse(TimestampLayout, b.FinishDate)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "build %d has malformed finish date %q", b.ID, b.FinishDate)
	}
	return t, nil
}

type ProblemOccurrence struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Identity string `json:"identity,omitempty"`
	Details  string `json:"details,omitempty"`
	Href     string `json:"href,omitempty"`
}

type ProblemOccurrences struct {
	Count             int                 `json:"count,omitempty"`
	ProblemOccurrence []ProblemOccurrence `json:"problemOccurrence,omitempty"`
}

func (p *ProblemOccurrences) ProblemsNonNil() []ProblemOccurrence {
	if p == nil || p.ProblemOccurrence == nil {
		return []ProblemOccurrence{}
	}
	return p.ProblemOccurrence
}
