package buildchain

import (
	"context"

	log "github.com/sirupsen/logrus"

	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

// expansionPasses is how many times the dependency expander is applied starting from the
// chain root. Two passes reach the root, its direct dependencies and theirs.
const expansionPasses = 2

// expand returns ref together with its direct snapshot dependencies. A reference whose
// build cannot be fetched expands to nothing.
func (r *Resolver) expand(ctx context.Context, ref teamcityv1.BuildRef) []teamcityv1.BuildRef {
	build, err := r.server.BuildResult(ctx, ref)
	if err != nil || build == nil {
		log.WithError(err).WithField("href", ref.Href).Debug("dropping unresolved build while expanding dependencies")
		return nil
	}

	deps := build.SnapshotDependenciesNonNil()
	if len(deps) == 0 {
		return []teamcityv1.BuildRef{ref}
	}

	expanded := make([]teamcityv1.BuildRef, 0, len(deps)+1)
	expanded = append(expanded, deps...)
	return append(expanded, ref)
}
