package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildhistory"
)

func newChain(rootID int64, suites ...*chainv1.SuiteRunContext) *chainv1.ChainRunContext {
	return &chainv1.ChainRunContext{
		Root:   &teamcityv1.Build{BuildRef: teamcityv1.BuildRef{ID: rootID}},
		Suites: suites,
	}
}

func TestDaySummaries(t *testing.T) {
	history := buildhistory.NewBuildMetricsHistory()
	key := buildhistory.SuiteInBranch{ID: "Tests_RunAll", Branch: teamcityv1.MasterBranch}
	h := history.History(key)

	crashed := &chainv1.SuiteRunContext{
		SuiteName:   "Cache",
		Problems:    []teamcityv1.ProblemOccurrence{{Type: teamcityv1.ProblemJvmCrash}},
		FailedTests: 1,
	}
	flaky := &chainv1.SuiteRunContext{
		SuiteName:   "Basic",
		Problems:    []teamcityv1.ProblemOccurrence{{Type: teamcityv1.ProblemFailedTests}},
		FailedTests: 4,
	}
	h.Add("20240102", newChain(1, crashed, flaky))
	h.Add("20240103", newChain(2, flaky))
	history.History(buildhistory.SuiteInBranch{ID: "Other", Branch: "b"})

	rows := daySummaries(history)
	require.Len(t, rows, 2)

	assert.Equal(t, "20240102", rows[0].Day)
	assert.Equal(t, int64(1), rows[0].RootBuildID)
	assert.Equal(t, 1, rows[0].BuildProblems)
	assert.Equal(t, 5, rows[0].FailedTests)
	assert.Equal(t, []string{"Cache"}, []string(rows[0].ProblemSuites))

	assert.Equal(t, "20240103", rows[1].Day)
	assert.Empty(t, rows[1].ProblemSuites)
}

func TestPassRates(t *testing.T) {
	history := buildhistory.NewBuildMetricsHistory()
	for _, ok := range []bool{true, false, true, true} {
		history.AddSuiteResult("public", "Basic", ok)
	}

	rows := passRates(history)
	require.Len(t, rows, 1)
	assert.Equal(t, "public", rows[0].Server)
	assert.Equal(t, "Basic", rows[0].Suite)
	assert.Equal(t, 3, rows[0].Success)
	assert.Equal(t, 4, rows[0].TotalRun)
	assert.Equal(t, 0.75, rows[0].PassRate)
}
