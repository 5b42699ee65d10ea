package buildhistory

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildchain"
	"github.com/tcbot-dev/tchelper/pkg/teamcity/teamcitytest"
)

const runAll = "Tests_RunAll"

func newHistoryServer() *teamcitytest.Server {
	srv := teamcitytest.NewServer("public")

	a1 := teamcitytest.NewBuild(11, "Tests_Basic", "Basic")
	srv.SetFailedTests(a1, 2)
	b1 := teamcitytest.NewBuild(12, "Tests_Cache", "Cache")
	srv.SetProblems(b1, teamcityv1.ProblemExitCode)
	r1 := teamcitytest.NewBuild(1, runAll, "Run All", a1, b1)
	r1.FinishDate = "20240102T101500+0000"

	a2 := teamcitytest.NewBuild(21, "Tests_Basic", "Basic")
	r2 := teamcitytest.NewBuild(2, runAll, "Run All", a2)
	r2.FinishDate = "20240102T080000+0000"

	a3 := teamcitytest.NewBuild(31, "Tests_Basic", "Basic")
	b3 := teamcitytest.NewBuild(32, "Tests_Cache", "Cache")
	srv.SetProblems(b3, teamcityv1.ProblemFailedTests, teamcityv1.ProblemSnapshotDepErrorBuild)
	r3 := teamcitytest.NewBuild(3, runAll, "Run All", a3, b3)
	r3.FinishDate = "20240103T120000+0000"

	srv.AddBuilds(r1, a1, b1, r2, a2, r3, a3, b3)
	srv.SetFinished(runAll, teamcityv1.MasterBranch, r1, r2, r3)
	return srv
}

func TestFailuresHistoryPassRate(t *testing.T) {
	f := &FailuresHistory{}
	assert.True(t, math.IsNaN(f.PassRate()))

	for _, ok := range []bool{true, false, true, true} {
		f.AddRun(ok)
	}

	assert.Equal(t, 0.75, f.PassRate())
	assert.Equal(t, "0.75", f.PassRateStr())
}

func TestSuiteInBranchCompare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     SuiteInBranch
		expected int
	}{
		{name: "id first", a: SuiteInBranch{"A", "z"}, b: SuiteInBranch{"B", "a"}, expected: -1},
		{name: "then branch", a: SuiteInBranch{"A", "b"}, b: SuiteInBranch{"A", "a"}, expected: 1},
		{name: "equal", a: SuiteInBranch{"A", "a"}, b: SuiteInBranch{"A", "a"}, expected: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Compare(tt.b))
		})
	}
}

func TestCollect(t *testing.T) {
	srv := newHistoryServer()
	resolver := buildchain.NewResolver(srv)
	history := NewBuildMetricsHistory()
	key := SuiteInBranch{ID: runAll, Branch: teamcityv1.MasterBranch}

	require.NoError(t, Collect(context.TODO(), history, resolver, runAll, teamcityv1.MasterBranch))

	assert.Equal(t, []string{"20240102", "20240103"}, history.Dates())
	first := history.Build(key, "20240102")
	require.NotNil(t, first)
	assert.Equal(t, int64(1), first.Root.ID, "first build seen for a day wins")
	assert.Equal(t, 1, first.BuildProblems())
	assert.Equal(t, 2, first.FailedTests())

	second := history.Build(key, "20240103")
	require.NotNil(t, second)
	assert.Equal(t, 0, second.BuildProblems())

	basic := history.Failures(QualifiedSuiteName("public", "Basic"))
	require.NotNil(t, basic)
	assert.Equal(t, 2, basic.TotalRun)
	assert.Equal(t, 1, basic.Success)
	assert.Equal(t, []string{"public\tBasic", "public\tCache"}, history.QualifiedSuiteNames())

	// collecting again must not replace or recount existing days
	require.NoError(t, Collect(context.TODO(), history, resolver, runAll, teamcityv1.MasterBranch))
	assert.Same(t, first, history.Build(key, "20240102"))
	assert.Equal(t, 2, history.Failures(QualifiedSuiteName("public", "Basic")).TotalRun)
}

func TestCollectMalformedFinishDate(t *testing.T) {
	srv := teamcitytest.NewServer("public")
	r := teamcitytest.NewBuild(1, runAll, "Run All")
	r.FinishDate = "yesterday"
	srv.AddBuilds(r)
	srv.SetFinished(runAll, "pull/1/head", r)

	err := Collect(context.TODO(), NewBuildMetricsHistory(), buildchain.NewResolver(srv), runAll, "pull/1/head")
	assert.Error(t, err)
}

func TestBuildHistoryKeepsFirstRecord(t *testing.T) {
	history := NewBuildMetricsHistory()
	h := history.History(SuiteInBranch{ID: runAll, Branch: "b"})

	srv := newHistoryServer()
	resolver := buildchain.NewResolver(srv)
	r1, err := srv.BuildResult(context.TODO(), teamcitytest.NewBuild(1, runAll, "").BuildRef)
	require.NoError(t, err)
	r3, err := srv.BuildResult(context.TODO(), teamcitytest.NewBuild(3, runAll, "").BuildRef)
	require.NoError(t, err)

	assert.True(t, h.Add("20240102", resolver.ResolveDirect(context.TODO(), r1)))
	assert.False(t, h.Add("20240102", resolver.ResolveDirect(context.TODO(), r3)))
	assert.Equal(t, int64(1), h.Get("20240102").Root.ID)
	assert.Same(t, h, history.History(SuiteInBranch{ID: runAll, Branch: "b"}))
	assert.Len(t, history.Builds(), 1)
}

func TestWriteTable(t *testing.T) {
	srv := newHistoryServer()
	history := NewBuildMetricsHistory()
	require.NoError(t, Collect(context.TODO(), history, buildchain.NewResolver(srv), runAll, teamcityv1.MasterBranch))
	history.History(SuiteInBranch{ID: "Other", Branch: "b"})

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, history))

	expected := "Date\tTests_RunAll\trefs/heads/master\t \tOther\tb\t \t\n" +
		"02.01.2024\t1\t2\t \t \t \t \t\n" +
		"03.01.2024\t0\t0\t \t \t \t \t\n" +
		"\n"
	assert.Equal(t, expected, buf.String())
}

func TestLowPassRates(t *testing.T) {
	history := NewBuildMetricsHistory()
	history.AddSuiteResult("public", "Flaky", true)
	for i := 0; i < 9; i++ {
		history.AddSuiteResult("public", "Flaky", false)
	}
	history.AddSuiteResult("private", "Steady", true)
	history.AddSuiteResult("private", "Steady", false)

	low := history.LowPassRates(PassRateThreshold)
	require.Len(t, low, 1)
	assert.Equal(t, "public\tFlaky", low[0].Name)
	assert.InDelta(t, 0.1, low[0].PassRate, 1e-9)

	var buf bytes.Buffer
	require.NoError(t, WriteLowPassRates(&buf, history, PassRateThreshold))
	assert.Equal(t, "public\tFlaky 0.10\n", buf.String())

	history.PublishMetrics()
}
