package buildhistory

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const displayDateLayout = "02.01.2006"

// WriteTable writes a tab separated table with one row per day and, for every suite and
// branch, the number of suites with build problems and the number of failed tests.
func WriteTable(w io.Writer, history *BuildMetricsHistory) error {
	var sb strings.Builder
	keys := history.Builds()

	sb.WriteString("Date\t")
	for _, key := range keys {
		sb.WriteString(key.ID + "\t" + key.Branch + "\t \t")
	}
	sb.WriteString("\n")

	for _, day := range history.Dates() {
		parsed, err := time.Parse(dayKeyLayout, day)
		if err != nil {
			return errors.Wrapf(err, "invalid day key %q", day)
		}
		sb.WriteString(parsed.Format(displayDateLayout) + "\t")

		for _, key := range keys {
			problems, failed := " ", " "
			if chain := history.Build(key, day); chain != nil {
				problems = strconv.Itoa(chain.BuildProblems())
				failed = strconv.Itoa(chain.FailedTests())
			}
			sb.WriteString(problems + "\t" + failed + "\t \t")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteLowPassRates writes one "name rate" line per suite below threshold.
func WriteLowPassRates(w io.Writer, history *BuildMetricsHistory, threshold float64) error {
	for _, low := range history.LowPassRates(threshold) {
		if _, err := fmt.Fprintf(w, "%s %s\n", low.Name, history.Failures(low.Name).PassRateStr()); err != nil {
			return err
		}
	}
	return nil
}
