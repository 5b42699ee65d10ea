package tcserver

import (
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildhistory"
)

type historyDay struct {
	Day           string `json:"day"`
	RootBuildID   int64  `json:"rootBuildId"`
	BuildProblems int    `json:"buildProblems"`
	FailedTests   int    `json:"failedTests"`
}

type historyReport struct {
	Server       string                       `json:"server"`
	SuiteID      string                       `json:"suiteId"`
	Branch       string                       `json:"branch"`
	Days         []historyDay                 `json:"days"`
	LowPassRates []buildhistory.SuitePassRate `json:"lowPassRates"`
}

func historyBranch(req *http.Request) string {
	if branch := req.URL.Query().Get("branch"); branch != "" {
		return branch
	}
	return teamcityv1.DefaultBranch
}

// jsonHistoryReport replays the finished builds of a suite and reports one chain summary
// per day.
func (s *Server) jsonHistoryReport(w http.ResponseWriter, req *http.Request) {
	suiteID := mux.Vars(req)["suite"]
	branch := historyBranch(req)

	serverID, resolver, ok := s.resolverFor(req)
	if !ok {
		failureResponse(w, http.StatusBadRequest, "unknown server "+serverID)
		return
	}

	history := buildhistory.NewBuildMetricsHistory()
	if err := buildhistory.Collect(req.Context(), history, resolver, suiteID, branch); err != nil {
		log.WithError(err).WithField("suite", suiteID).Error("error collecting history")
		failureResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	history.PublishMetrics()

	key := buildhistory.SuiteInBranch{ID: suiteID, Branch: branch}
	report := historyReport{
		Server:       serverID,
		SuiteID:      suiteID,
		Branch:       branch,
		Days:         []historyDay{},
		LowPassRates: history.LowPassRates(buildhistory.PassRateThreshold),
	}
	if report.LowPassRates == nil {
		report.LowPassRates = []buildhistory.SuitePassRate{}
	}
	for _, day := range history.Dates() {
		chain := history.Build(key, day)
		if chain == nil {
			continue
		}
		report.Days = append(report.Days, historyDay{
			Day:           day,
			RootBuildID:   chain.Root.ID,
			BuildProblems: chain.BuildProblems(),
			FailedTests:   chain.FailedTests(),
		})
	}

	respondWithJSON(http.StatusOK, w, report)
}

func (s *Server) jsonStoredHistoryReport(w http.ResponseWriter, req *http.Request) {
	if s.db == nil {
		failureResponse(w, http.StatusServiceUnavailable, "history database is not configured")
		return
	}

	suiteID := mux.Vars(req)["suite"]
	rows, err := s.db.ChainDaySummaries(suiteID, historyBranch(req))
	if err != nil {
		failureResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(http.StatusOK, w, rows)
}
