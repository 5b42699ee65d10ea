package models

import (
	"github.com/lib/pq"
)

// ChainDaySummary is the chain result recorded for a suite and branch on one day.
type ChainDaySummary struct {
	Model

	SuiteID string `json:"suite_id" gorm:"not null;uniqueIndex:idx_chain_day_summaries_key"`
	Branch  string `json:"branch" gorm:"not null;uniqueIndex:idx_chain_day_summaries_key"`
	// Day is formatted yyyymmdd.
	Day string `json:"day" gorm:"not null;uniqueIndex:idx_chain_day_summaries_key"`

	RootBuildID   int64 `json:"root_build_id"`
	BuildProblems int   `json:"build_problems"`
	FailedTests   int   `json:"failed_tests"`
	// ProblemSuites are the names of the suites in the chain that reported a build problem.
	ProblemSuites pq.StringArray `json:"problem_suites" gorm:"type:text[]"`
}

// SuitePassRate is the pass rate of a suite over the collected history.
type SuitePassRate struct {
	Model

	Server   string  `json:"server" gorm:"not null;uniqueIndex:idx_suite_pass_rates_key"`
	Suite    string  `json:"suite" gorm:"not null;uniqueIndex:idx_suite_pass_rates_key"`
	Success  int     `json:"success"`
	TotalRun int     `json:"total_run"`
	PassRate float64 `json:"pass_rate"`
}
