package v1

import (
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

// ContactOwners maps a suite id to the person responsible for triaging it. A nil mapping
// means contacts were not requested; an empty but non-nil mapping still switches chain
// ordering to contact owner.
type ContactOwners map[string]string

// benignProblemTypes do not break a chain on their own.
var benignProblemTypes = map[string]bool{
	teamcityv1.ProblemFailedTests:           true,
	teamcityv1.ProblemSnapshotDepErrorBuild: true,
	teamcityv1.ProblemBuildFailureOnMessage: true,
}

// SuiteRunContext is the per build summary produced while resolving a chain. It is only
// written while the chain is being resolved.
type SuiteRunContext struct {
	SuiteID   string `json:"suiteId"`
	SuiteName string `json:"suiteName"`
	BuildID   int64  `json:"buildId"`
	Branch    string `json:"branch,omitempty"`
	WebURL    string `json:"webUrl,omitempty"`

	Problems          []teamcityv1.ProblemOccurrence `json:"problems,omitempty"`
	FailedTests       int                            `json:"failedTests"`
	RunningBuildCount int                            `json:"runningBuildCount"`
	QueuedBuildCount  int                            `json:"queuedBuildCount"`
	ContactPerson     string                         `json:"contactPerson,omitempty"`
}

// NewSuiteRunContext builds the base suite context of build from its problem list and
// test summary.
func NewSuiteRunContext(build *teamcityv1.Build, problems []teamcityv1.ProblemOccurrence) *SuiteRunContext {
	return &SuiteRunContext{
		SuiteID:     build.SuiteID(),
		SuiteName:   build.SuiteName(),
		BuildID:     build.ID,
		Branch:      build.BranchName,
		WebURL:      build.WebURL,
		Problems:    problems,
		FailedTests: build.FailedTests(),
	}
}

func (s *SuiteRunContext) hasProblem(problemType string) bool {
	for _, p := range s.Problems {
		if p.Type == problemType {
			return true
		}
	}
	return false
}

func (s *SuiteRunContext) HasJvmCrashProblem() bool {
	return s.hasProblem(teamcityv1.ProblemJvmCrash)
}

func (s *SuiteRunContext) HasTimeoutProblem() bool {
	return s.hasProblem(teamcityv1.ProblemExecutionTimeout)
}

func (s *SuiteRunContext) HasOomeProblem() bool {
	return s.hasProblem(teamcityv1.ProblemOutOfMemory)
}

// HasNontestBuildProblem is true when any problem other than failed tests, a tolerated
// snapshot dependency error or a message triggered failure was reported.
func (s *SuiteRunContext) HasNontestBuildProblem() bool {
	for _, p := range s.Problems {
		if !benignProblemTypes[p.Type] {
			return true
		}
	}
	return false
}

func (s *SuiteRunContext) ContactPersonOrEmpty() string {
	return s.ContactPerson
}

// Succeeded reports whether the suite counts as a passing run for pass rate purposes.
func (s *SuiteRunContext) Succeeded() bool {
	return s.FailedTests == 0 && !s.HasNontestBuildProblem()
}

// ChainRunContext is a root build together with the suites resolved from it. The chain
// holds at most one suite per build type.
type ChainRunContext struct {
	Root   *teamcityv1.Build  `json:"root"`
	Suites []*SuiteRunContext `json:"suites"`
}

func (c *ChainRunContext) SuiteName() string {
	if c.Root == nil {
		return ""
	}
	return c.Root.SuiteName()
}

// BuildProblems counts suites with a non-test build problem.
func (c *ChainRunContext) BuildProblems() int {
	cnt := 0
	for _, s := range c.Suites {
		if s.HasNontestBuildProblem() {
			cnt++
		}
	}
	return cnt
}

func (c *ChainRunContext) FailedTests() int {
	total := 0
	for _, s := range c.Suites {
		total += s.FailedTests
	}
	return total
}
