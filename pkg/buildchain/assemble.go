package buildchain

import (
	"slices"
	"strings"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

// assemble orders suites and pairs them with root. Suites are ordered by contact owner
// when a mapping was supplied and by suite name otherwise, ties broken by suite id.
func assemble(root *teamcityv1.Build, suites []*chainv1.SuiteRunContext, contacts chainv1.ContactOwners) *chainv1.ChainRunContext {
	if suites == nil {
		suites = []*chainv1.SuiteRunContext{}
	}
	sortSuites(suites, contacts != nil)
	return &chainv1.ChainRunContext{
		Root:   root,
		Suites: suites,
	}
}

func sortSuites(suites []*chainv1.SuiteRunContext, byContact bool) {
	slices.SortStableFunc(suites, func(a, b *chainv1.SuiteRunContext) int {
		var c int
		if byContact {
			c = strings.Compare(a.ContactPersonOrEmpty(), b.ContactPersonOrEmpty())
		} else {
			c = strings.Compare(a.SuiteName, b.SuiteName)
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.SuiteID, b.SuiteID)
	})
}
