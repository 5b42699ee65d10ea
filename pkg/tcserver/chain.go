package tcserver

import (
	"net/http"

	"github.com/gorilla/mux"

	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
	"github.com/tcbot-dev/tchelper/pkg/buildchain"
)

// chainOptions reads the enrichment switches of a chain request. Contacts are only
// attached when requested.
func (s *Server) chainOptions(req *http.Request, serverID string) (buildchain.Options, error) {
	var opts buildchain.Options
	var err error
	if opts.IncludeLatestRebuild, err = boolParam(req, "rebuild", false); err != nil {
		return opts, err
	}
	if opts.ProcessLogs, err = boolParam(req, "logs", false); err != nil {
		return opts, err
	}
	if opts.IncludeScheduled, err = boolParam(req, "scheduled", false); err != nil {
		return opts, err
	}
	contacts, err := boolParam(req, "contacts", false)
	if err != nil {
		return opts, err
	}
	if contacts {
		opts.ContactOwners = s.config.ContactOwners(serverID)
	}
	return opts, nil
}

func (s *Server) jsonChainReport(w http.ResponseWriter, req *http.Request) {
	suiteID := mux.Vars(req)["suite"]
	branch := req.URL.Query().Get("branch")
	if branch == "" {
		branch = teamcityv1.DefaultBranch
	}

	serverID, resolver, ok := s.resolverFor(req)
	if !ok {
		failureResponse(w, http.StatusBadRequest, "unknown server "+serverID)
		return
	}

	opts, err := s.chainOptions(req, serverID)
	if err != nil {
		failureResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	chain, found := resolver.LoadChainContext(req.Context(), suiteID, branch, opts)
	if !found {
		failureResponse(w, http.StatusNotFound, "no build of "+suiteID+" found on "+branch)
		return
	}

	respondWithJSON(http.StatusOK, w, map[string]interface{}{
		"server":        serverID,
		"suiteId":       suiteID,
		"suiteName":     chain.SuiteName(),
		"branch":        branch,
		"rootBuildId":   chain.Root.ID,
		"buildProblems": chain.BuildProblems(),
		"failedTests":   chain.FailedTests(),
		"suites":        chain.Suites,
	})
}
