// Package teamcitytest provides an in-memory build server for tests.
package teamcitytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

var ErrNotFound = errors.New("build not found")

// Server is an in-memory build server. It is safe for concurrent use.
type Server struct {
	ID string

	lock      sync.Mutex
	builds    map[string]*teamcityv1.Build
	rebuilds  map[string]teamcityv1.BuildRef
	problems  map[string][]teamcityv1.ProblemOccurrence
	running   map[string]int
	queued    map[string]int
	finished  map[string][]teamcityv1.BuildRef
	fetches   map[string]int
	loadError map[string]error
}

func NewServer(id string) *Server {
	return &Server{
		ID:        id,
		builds:    map[string]*teamcityv1.Build{},
		rebuilds:  map[string]teamcityv1.BuildRef{},
		problems:  map[string][]teamcityv1.ProblemOccurrence{},
		running:   map[string]int{},
		queued:    map[string]int{},
		finished:  map[string][]teamcityv1.BuildRef{},
		fetches:   map[string]int{},
		loadError: map[string]error{},
	}
}

// NewBuild returns a finished build of buildTypeID named name with the given snapshot
// dependencies.
func NewBuild(id int64, buildTypeID, name string, deps ...*teamcityv1.Build) *teamcityv1.Build {
	b := &teamcityv1.Build{
		BuildRef: teamcityv1.BuildRef{
			ID:          id,
			BuildTypeID: buildTypeID,
			Href:        fmt.Sprintf("/app/rest/latest/builds/id:%d", id),
			State:       "finished",
			Status:      "SUCCESS",
		},
		BuildType: teamcityv1.BuildType{ID: buildTypeID, Name: name},
	}
	if len(deps) > 0 {
		b.SnapshotDependencies = &teamcityv1.SnapshotDependencies{Count: len(deps)}
		for _, d := range deps {
			b.SnapshotDependencies.Build = append(b.SnapshotDependencies.Build, d.BuildRef)
		}
	}
	return b
}

// AddBuilds registers builds so they can be resolved by href.
func (s *Server) AddBuilds(builds ...*teamcityv1.Build) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, b := range builds {
		s.builds[b.Href] = b
		if b.ProblemOccurrences != nil {
			if _, ok := s.problems[b.ProblemOccurrences.Href]; !ok {
				s.problems[b.ProblemOccurrences.Href] = nil
			}
		}
	}
}

// SetProblems attaches problems of the given types to build.
func (s *Server) SetProblems(build *teamcityv1.Build, problemTypes ...string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	href := fmt.Sprintf("/app/rest/latest/problemOccurrences?locator=build:(id:%d)", build.ID)
	build.ProblemOccurrences = &teamcityv1.ProblemOccurrencesRef{Href: href, Count: len(problemTypes)}
	problems := make([]teamcityv1.ProblemOccurrence, 0, len(problemTypes))
	for i, t := range problemTypes {
		problems = append(problems, teamcityv1.ProblemOccurrence{ID: fmt.Sprintf("%d-%d", build.ID, i), Type: t})
	}
	s.problems[href] = problems
}

// SetFailedTests sets the failed test count of build.
func (s *Server) SetFailedTests(build *teamcityv1.Build, failed int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	build.TestOccurrences = &teamcityv1.TestOccurrencesRef{Failed: &failed}
}

// SetRebuild makes rebuild the latest rebuild of original.
func (s *Server) SetRebuild(original *teamcityv1.Build, rebuild teamcityv1.BuildRef) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rebuilds[original.Href] = rebuild
}

func (s *Server) SetRunning(buildTypeID, branch string, n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.running[buildTypeID+"|"+branch] = n
}

func (s *Server) SetQueued(buildTypeID, branch string, n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.queued[buildTypeID+"|"+branch] = n
}

// SetFinished sets the finished build history of suiteID on branch, most recent first.
func (s *Server) SetFinished(suiteID, branch string, builds ...*teamcityv1.Build) {
	s.lock.Lock()
	defer s.lock.Unlock()
	refs := make([]teamcityv1.BuildRef, 0, len(builds))
	for _, b := range builds {
		refs = append(refs, b.BuildRef)
	}
	s.finished[suiteID+"|"+branch] = refs
}

// FailLoad makes LoadTestsAndProblems fail for build.
func (s *Server) FailLoad(build *teamcityv1.Build, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.loadError[build.Href] = err
}

// Fetches returns how many times BuildResult was called for href.
func (s *Server) Fetches(href string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.fetches[href]
}

func (s *Server) ServerID() string {
	return s.ID
}

func (s *Server) MostRecentBuildIncludingFailedDependencies(ctx context.Context, suiteID, branch string) (*teamcityv1.BuildRef, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	refs := s.finished[suiteID+"|"+branch]
	if len(refs) == 0 {
		return nil, ErrNotFound
	}
	ref := refs[0]
	return &ref, nil
}

func (s *Server) BuildResult(ctx context.Context, ref teamcityv1.BuildRef) (*teamcityv1.Build, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fetches[ref.Href]++
	b, ok := s.builds[ref.Href]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, ref.Href)
	}
	return b, nil
}

func (s *Server) LatestRebuildOf(ctx context.Context, ref teamcityv1.BuildRef) teamcityv1.BuildRef {
	s.lock.Lock()
	defer s.lock.Unlock()
	if r, ok := s.rebuilds[ref.Href]; ok {
		return r
	}
	return teamcityv1.StubBuildRef()
}

func (s *Server) LoadTestsAndProblems(ctx context.Context, build *teamcityv1.Build) (*chainv1.SuiteRunContext, error) {
	s.lock.Lock()
	err := s.loadError[build.Href]
	s.lock.Unlock()
	if err != nil {
		return nil, err
	}

	var problems []teamcityv1.ProblemOccurrence
	if build.ProblemOccurrences != nil {
		problems, err = s.Problems(ctx, build.ProblemOccurrences.Href)
		if err != nil {
			return nil, err
		}
	}
	return chainv1.NewSuiteRunContext(build, problems), nil
}

func (s *Server) RunningBuilds(ctx context.Context, buildTypeID, branch string) ([]teamcityv1.BuildRef, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return make([]teamcityv1.BuildRef, s.running[buildTypeID+"|"+branch]), nil
}

func (s *Server) QueuedBuilds(ctx context.Context, buildTypeID, branch string) ([]teamcityv1.BuildRef, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return make([]teamcityv1.BuildRef, s.queued[buildTypeID+"|"+branch]), nil
}

func (s *Server) Problems(ctx context.Context, href string) ([]teamcityv1.ProblemOccurrence, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	problems, ok := s.problems[href]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, href)
	}
	return problems, nil
}

func (s *Server) FinishedBuildsIncludingFailed(ctx context.Context, suiteID, branch string) ([]teamcityv1.BuildRef, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.finished[suiteID+"|"+branch], nil
}

// LogInspector records inspected suites and returns Err, or panics when Panic is set.
type LogInspector struct {
	Err   error
	Panic bool

	lock      sync.Mutex
	inspected []string
}

func (l *LogInspector) InspectBuildLog(ctx context.Context, suite *chainv1.SuiteRunContext) error {
	l.lock.Lock()
	l.inspected = append(l.inspected, suite.SuiteID)
	l.lock.Unlock()
	if l.Panic {
		panic("log inspector exploded")
	}
	return l.Err
}

// Inspected returns the ids of the suites whose logs were inspected.
func (l *LogInspector) Inspected() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.inspected...)
}
