package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

func TestWriteChain(t *testing.T) {
	chain := &chainv1.ChainRunContext{
		Root: &teamcityv1.Build{BuildType: teamcityv1.BuildType{ID: "Tests_RunAll", Name: "Run All"}},
		Suites: []*chainv1.SuiteRunContext{
			{SuiteID: "Tests_Basic", SuiteName: "Basic"},
			{
				SuiteID:          "Tests_Cache",
				SuiteName:        "Cache",
				FailedTests:      2,
				Problems:         []teamcityv1.ProblemOccurrence{{Type: teamcityv1.ProblemOutOfMemory}},
				QueuedBuildCount: 1,
				ContactPerson:    "alice",
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeChain(&buf, chain, ""))
	assert.Equal(t, "Run All: 1 suites with build problems, 2 failed tests\n"+
		"Basic\tOK\tfailed tests: 0\n"+
		"Cache\tFAILED\tfailed tests: 2\tcrash/timeout/oome\trunning: 0 queued: 1\tcontact: alice\n", buf.String())

	buf.Reset()
	require.NoError(t, writeChain(&buf, chain, "json"))
	assert.Contains(t, buf.String(), `"suiteId": "Tests_Cache"`)

	assert.Error(t, writeChain(&buf, chain, "xml"))
}
