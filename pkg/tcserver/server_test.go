package tcserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/tcbot-dev/tchelper/pkg/apis/config/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildchain"
	"github.com/tcbot-dev/tchelper/pkg/teamcity/teamcitytest"
)

type chainResponse struct {
	Server        string `json:"server"`
	SuiteName     string `json:"suiteName"`
	RootBuildID   int64  `json:"rootBuildId"`
	BuildProblems int    `json:"buildProblems"`
	FailedTests   int    `json:"failedTests"`
	Suites        []struct {
		SuiteID          string `json:"suiteId"`
		ContactPerson    string `json:"contactPerson"`
		QueuedBuildCount int    `json:"queuedBuildCount"`
	} `json:"suites"`
}

func newTestServer(t *testing.T) *httptest.Server {
	srv := teamcitytest.NewServer("public")

	basic := teamcitytest.NewBuild(2, "Tests_Basic", "Basic")
	srv.SetFailedTests(basic, 3)
	cache := teamcitytest.NewBuild(3, "Tests_Cache", "Cache")
	srv.SetProblems(cache, teamcityv1.ProblemJvmCrash)
	root := teamcitytest.NewBuild(1, "Tests_RunAll", "Run All", basic, cache)
	root.FinishDate = "20240102T101500+0000"
	srv.AddBuilds(root, basic, cache)
	srv.SetFinished("Tests_RunAll", teamcityv1.DefaultBranch, root)
	srv.SetQueued("Tests_Cache", teamcityv1.DefaultBranch, 2)

	cfg := &v1.HelperConfig{
		Contacts: map[string]map[string]string{
			"public": {"Tests_Cache": "alice"},
		},
	}
	resolvers := map[string]*buildchain.Resolver{"public": buildchain.NewResolver(srv)}
	ts := httptest.NewServer(NewServer(":0", "public", resolvers, cfg, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, into interface{}) *http.Response {
	resp, err := http.Get(url) //nolint:gosec
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]interface{}
	resp := get(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestChainReport(t *testing.T) {
	ts := newTestServer(t)

	var chain chainResponse
	resp := get(t, ts.URL+"/api/chain/Tests_RunAll", &chain)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "public", chain.Server)
	assert.Equal(t, "Run All", chain.SuiteName)
	assert.Equal(t, int64(1), chain.RootBuildID)
	assert.Equal(t, 1, chain.BuildProblems)
	assert.Equal(t, 3, chain.FailedTests)
	require.Len(t, chain.Suites, 3)
	assert.Equal(t, "Tests_Basic", chain.Suites[0].SuiteID)
	for _, s := range chain.Suites {
		assert.Empty(t, s.ContactPerson)
	}
}

func TestChainReportWithContactsAndSchedule(t *testing.T) {
	ts := newTestServer(t)

	var chain chainResponse
	resp := get(t, ts.URL+"/api/chain/Tests_RunAll?contacts=true&scheduled=true", &chain)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, chain.Suites, 3)
	// suites without an owner sort first, ties by suite id
	assert.Equal(t, "Tests_Basic", chain.Suites[0].SuiteID)
	assert.Equal(t, "Tests_RunAll", chain.Suites[1].SuiteID)
	assert.Equal(t, "Tests_Cache", chain.Suites[2].SuiteID)
	assert.Equal(t, "alice", chain.Suites[2].ContactPerson)
	assert.Equal(t, 2, chain.Suites[2].QueuedBuildCount)
}

func TestChainReportErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "unknown suite", path: "/api/chain/Nope", status: http.StatusNotFound},
		{name: "unknown server", path: "/api/chain/Tests_RunAll?server=private", status: http.StatusBadRequest},
		{name: "bad flag", path: "/api/chain/Tests_RunAll?rebuild=maybe", status: http.StatusBadRequest},
		{name: "wrong method", path: "/api/chain/Tests_RunAll", status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.status == http.StatusMethodNotAllowed {
				var err error
				resp, err = http.Post(ts.URL+tt.path, "application/json", nil) //nolint:gosec
				require.NoError(t, err)
				resp.Body.Close()
			} else {
				resp = get(t, ts.URL+tt.path, nil)
			}
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestHistoryReport(t *testing.T) {
	ts := newTestServer(t)

	var report historyReport
	resp := get(t, ts.URL+"/api/history/Tests_RunAll", &report)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, teamcityv1.DefaultBranch, report.Branch)
	require.Len(t, report.Days, 1)
	assert.Equal(t, "20240102", report.Days[0].Day)
	assert.Equal(t, 1, report.Days[0].BuildProblems)
	assert.Equal(t, 3, report.Days[0].FailedTests)

	require.Len(t, report.LowPassRates, 2)
	assert.Equal(t, "public\tBasic", report.LowPassRates[0].Name)
	assert.Equal(t, "public\tCache", report.LowPassRates[1].Name)
}

func TestStoredHistoryWithoutDatabase(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts.URL+"/api/history/Tests_RunAll/stored", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
