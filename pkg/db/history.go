package db

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tcbot-dev/tchelper/pkg/buildhistory"
	"github.com/tcbot-dev/tchelper/pkg/db/models"
)

// daySummaries flattens every recorded chain of history into rows.
func daySummaries(history *buildhistory.BuildMetricsHistory) []models.ChainDaySummary {
	var rows []models.ChainDaySummary
	for _, key := range history.Builds() {
		for _, day := range history.Dates() {
			chain := history.Build(key, day)
			if chain == nil {
				continue
			}
			row := models.ChainDaySummary{
				SuiteID:       key.ID,
				Branch:        key.Branch,
				Day:           day,
				BuildProblems: chain.BuildProblems(),
				FailedTests:   chain.FailedTests(),
				ProblemSuites: []string{},
			}
			if chain.Root != nil {
				row.RootBuildID = chain.Root.ID
			}
			for _, suite := range chain.Suites {
				if suite.HasNontestBuildProblem() {
					row.ProblemSuites = append(row.ProblemSuites, suite.SuiteName)
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// passRates converts the suite failure histories with at least one run into rows.
func passRates(history *buildhistory.BuildMetricsHistory) []models.SuitePassRate {
	var rows []models.SuitePassRate
	for _, name := range history.QualifiedSuiteNames() {
		f := history.Failures(name)
		rate := f.PassRate()
		if math.IsNaN(rate) {
			continue
		}
		rows = append(rows, models.SuitePassRate{
			Server:   f.Server,
			Suite:    f.Suite,
			Success:  f.Success,
			TotalRun: f.TotalRun,
			PassRate: rate,
		})
	}
	return rows
}

// StoreHistory saves the day summaries and suite pass rates of history. Existing days keep
// their first recorded chain; pass rates are replaced with the latest totals.
func (d *DB) StoreHistory(history *buildhistory.BuildMetricsHistory) error {
	days := daySummaries(history)
	rates := passRates(history)

	return d.DB.Transaction(func(tx *gorm.DB) error {
		if len(days) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "suite_id"}, {Name: "branch"}, {Name: "day"}},
				DoNothing: true,
			}).CreateInBatches(days, d.BatchSize).Error
			if err != nil {
				return errors.Wrap(err, "error storing chain day summaries")
			}
		}
		if len(rates) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "server"}, {Name: "suite"}},
				DoUpdates: clause.AssignmentColumns([]string{"success", "total_run", "pass_rate", "updated_at"}),
			}).CreateInBatches(rates, d.BatchSize).Error
			if err != nil {
				return errors.Wrap(err, "error storing suite pass rates")
			}
		}
		log.WithFields(log.Fields{
			"days":   len(days),
			"suites": len(rates),
		}).Info("stored build history")
		return nil
	})
}

// ChainDaySummaries returns the stored summaries of suiteID on branch, oldest first.
func (d *DB) ChainDaySummaries(suiteID, branch string) ([]models.ChainDaySummary, error) {
	var rows []models.ChainDaySummary
	res := d.DB.Where("suite_id = ? AND branch = ?", suiteID, branch).Order("day").Find(&rows)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "error loading history of %s on %s", suiteID, branch)
	}
	return rows, nil
}
