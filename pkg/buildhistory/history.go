// Package buildhistory replays chain resolution over past builds of a suite to track
// per day chain results and suite pass rates.
package buildhistory

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
)

// PassRateThreshold is the pass rate below which a suite is reported as unstable.
const PassRateThreshold = 0.20

var suitePassRatioMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "tchelper_suite_pass_ratio",
	Help: "Ratio of passed runs for a suite over the collected build history",
}, []string{"server", "suite"})

// SuiteInBranch identifies the build history of one suite on one branch.
type SuiteInBranch struct {
	ID     string `json:"id"`
	Branch string `json:"branch"`
}

// Compare orders by suite id, then branch.
func (s SuiteInBranch) Compare(o SuiteInBranch) int {
	if c := strings.Compare(s.ID, o.ID); c != 0 {
		return c
	}
	return strings.Compare(s.Branch, o.Branch)
}

func (s SuiteInBranch) String() string {
	return fmt.Sprintf("{id='%s', branch='%s'}", s.ID, s.Branch)
}

// FailuresHistory counts the runs of a suite and how many of them passed.
type FailuresHistory struct {
	Server   string
	Suite    string
	Success  int
	TotalRun int
}

func (f *FailuresHistory) AddRun(ok bool) {
	f.TotalRun++
	if ok {
		f.Success++
	}
}

// PassRate is NaN when no runs were recorded.
func (f *FailuresHistory) PassRate() float64 {
	if f.TotalRun == 0 {
		return math.NaN()
	}
	return float64(f.Success) / float64(f.TotalRun)
}

func (f *FailuresHistory) PassRateStr() string {
	return fmt.Sprintf("%.2f", f.PassRate())
}

// BuildHistory holds one chain result per day, keyed yyyymmdd.
type BuildHistory struct {
	byDate map[string]*chainv1.ChainRunContext
}

func newBuildHistory() *BuildHistory {
	return &BuildHistory{byDate: map[string]*chainv1.ChainRunContext{}}
}

func (h *BuildHistory) Has(day string) bool {
	_, ok := h.byDate[day]
	return ok
}

// Add stores chain for day unless the day already has a result; the first one wins.
func (h *BuildHistory) Add(day string, chain *chainv1.ChainRunContext) bool {
	if h.Has(day) {
		return false
	}
	h.byDate[day] = chain
	return true
}

func (h *BuildHistory) Get(day string) *chainv1.ChainRunContext {
	return h.byDate[day]
}

// BuildMetricsHistory accumulates build histories for several suites and branches, and
// the pass rate of every suite seen in them. Keys are reported in the order they were
// first requested. It is not safe for concurrent use.
type BuildMetricsHistory struct {
	histories map[SuiteInBranch]*BuildHistory
	keys      []SuiteInBranch
	failures  map[string]*FailuresHistory
}

func NewBuildMetricsHistory() *BuildMetricsHistory {
	return &BuildMetricsHistory{
		histories: map[SuiteInBranch]*BuildHistory{},
		failures:  map[string]*FailuresHistory{},
	}
}

// History returns the build history of id, creating it on first use.
func (m *BuildMetricsHistory) History(id SuiteInBranch) *BuildHistory {
	if h, ok := m.histories[id]; ok {
		return h
	}
	h := newBuildHistory()
	m.histories[id] = h
	m.keys = append(m.keys, id)
	return h
}

// Builds returns the known suite/branch keys in first seen order.
func (m *BuildMetricsHistory) Builds() []SuiteInBranch {
	return append([]SuiteInBranch(nil), m.keys...)
}

// Dates returns every day with at least one result, ascending.
func (m *BuildMetricsHistory) Dates() []string {
	seen := map[string]bool{}
	var dates []string
	for _, h := range m.histories {
		for day := range h.byDate {
			if !seen[day] {
				seen[day] = true
				dates = append(dates, day)
			}
		}
	}
	sort.Strings(dates)
	return dates
}

// Build returns the chain recorded for id on day, or nil.
func (m *BuildMetricsHistory) Build(id SuiteInBranch, day string) *chainv1.ChainRunContext {
	h, ok := m.histories[id]
	if !ok {
		return nil
	}
	return h.Get(day)
}

// QualifiedSuiteName combines server identity and suite name.
func QualifiedSuiteName(serverID, suiteName string) string {
	return serverID + "\t" + suiteName
}

func (m *BuildMetricsHistory) AddSuiteResult(serverID, suiteName string, ok bool) {
	name := QualifiedSuiteName(serverID, suiteName)
	f, found := m.failures[name]
	if !found {
		f = &FailuresHistory{Server: serverID, Suite: suiteName}
		m.failures[name] = f
	}
	f.AddRun(ok)
}

// Failures returns the failure history of a qualified suite name, or nil.
func (m *BuildMetricsHistory) Failures(qualifiedName string) *FailuresHistory {
	return m.failures[qualifiedName]
}

// QualifiedSuiteNames returns all suites with recorded runs, sorted.
func (m *BuildMetricsHistory) QualifiedSuiteNames() []string {
	names := make([]string, 0, len(m.failures))
	for name := range m.failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SuitePassRate is a suite whose pass rate was reported.
type SuitePassRate struct {
	Name     string  `json:"name"`
	PassRate float64 `json:"passRate"`
}

// LowPassRates returns suites whose pass rate is below threshold, sorted by name.
func (m *BuildMetricsHistory) LowPassRates(threshold float64) []SuitePassRate {
	var low []SuitePassRate
	for _, name := range m.QualifiedSuiteNames() {
		rate := m.failures[name].PassRate()
		if rate < threshold {
			low = append(low, SuitePassRate{Name: name, PassRate: rate})
		}
	}
	return low
}

// PublishMetrics exports the pass rate of every suite with recorded runs.
func (m *BuildMetricsHistory) PublishMetrics() {
	for _, f := range m.failures {
		if f.TotalRun > 0 {
			suitePassRatioMetric.WithLabelValues(f.Server, f.Suite).Set(f.PassRate())
		}
	}
}
