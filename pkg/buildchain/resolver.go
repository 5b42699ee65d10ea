package buildchain

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

var chainResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "tchelper_chain_resolution_seconds",
	Help:    "Time taken to resolve a build chain, including all dependent build fetches",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
}, []string{"server", "mode"})

// Resolver turns a root build into a ChainRunContext by discovering its dependent builds
// and summarizing each of them.
type Resolver struct {
	server         Server
	logInspector   LogInspector
	maxConcurrency int
}

// ResolverOption is a functional option for configuring the resolver
type ResolverOption func(*Resolver)

// WithMaxConcurrency bounds the number of builds processed at once.
func WithMaxConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// WithLogInspector sets the inspector used when Options.ProcessLogs is set.
func WithLogInspector(inspector LogInspector) ResolverOption {
	return func(r *Resolver) {
		r.logInspector = inspector
	}
}

func NewResolver(server Server, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		server:         server,
		maxConcurrency: defaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Server() Server {
	return r.server
}

// LoadChainContext resolves the chain of the most recent build of suiteID on branch,
// including builds whose snapshot dependencies failed. It returns false when there is no
// such build.
func (r *Resolver) LoadChainContext(ctx context.Context, suiteID, branch string, opts Options) (*chainv1.ChainRunContext, bool) {
	ref, err := r.server.MostRecentBuildIncludingFailedDependencies(ctx, suiteID, branch)
	if err != nil || ref == nil {
		log.WithError(err).WithFields(log.Fields{
			"suite":  suiteID,
			"branch": branch,
		}).Info("no recent build found for suite")
		return nil, false
	}
	return r.ProcessChainByRef(ctx, *ref, opts)
}

// ProcessChainByRef resolves the chain rooted at ref. It returns false when the root build
// cannot be fetched.
func (r *Resolver) ProcessChainByRef(ctx context.Context, ref teamcityv1.BuildRef, opts Options) (*chainv1.ChainRunContext, bool) {
	root, err := r.server.BuildResult(ctx, ref)
	if err != nil || root == nil {
		log.WithError(err).WithField("href", ref.Href).Info("chain root could not be resolved")
		return nil, false
	}
	return r.Resolve(ctx, root, opts), true
}

// Resolve collects the builds reachable from root within two dependency expansions, keeps
// one build per build type and summarizes each. The result is ordered once every build
// has been processed.
func (r *Resolver) Resolve(ctx context.Context, root *teamcityv1.Build, opts Options) *chainv1.ChainRunContext {
	start := time.Now()
	defer func() {
		chainResolutionDuration.WithLabelValues(r.server.ServerID(), "live").Observe(time.Since(start).Seconds())
	}()

	refs := []teamcityv1.BuildRef{root.BuildRef}
	for pass := 0; pass < expansionPasses; pass++ {
		refs = fanOut(ctx, r.maxConcurrency, refs, r.expand)
	}

	suites := r.buildSuites(ctx, refs, opts)
	log.WithFields(log.Fields{
		"root":     root.SuiteID(),
		"branch":   root.BranchName,
		"suites":   len(suites),
		"duration": time.Since(start),
	}).Debug("resolved build chain")

	return assemble(root, suites, opts.ContactOwners)
}

// ResolveDirect summarizes only the direct snapshot dependencies already listed on root,
// without scheduling counts, contacts or log inspection.
func (r *Resolver) ResolveDirect(ctx context.Context, root *teamcityv1.Build) *chainv1.ChainRunContext {
	start := time.Now()
	defer func() {
		chainResolutionDuration.WithLabelValues(r.server.ServerID(), "history").Observe(time.Since(start).Seconds())
	}()

	suites := r.buildSuites(ctx, root.SnapshotDependenciesNonNil(), Options{})
	return assemble(root, suites, nil)
}

// buildSuites turns every distinct, resolvable reference into a suite context. The first
// reference claiming a build type wins; later ones are dropped.
func (r *Resolver) buildSuites(ctx context.Context, refs []teamcityv1.BuildRef, opts Options) []*chainv1.SuiteRunContext {
	claims := newBuildTypeClaims()

	return fanOut(ctx, r.maxConcurrency, refs, func(ctx context.Context, ref teamcityv1.BuildRef) []*chainv1.SuiteRunContext {
		if ref.IsFakeStub() {
			return nil
		}
		if !claims.claim(ref.BuildTypeID) {
			return nil
		}

		if opts.IncludeLatestRebuild {
			ref = r.latestRebuild(ctx, ref)
		}

		build, err := r.server.BuildResult(ctx, ref)
		if err != nil || build == nil || build.IsFakeStub() {
			log.WithError(err).WithField("href", ref.Href).Debug("dropping unresolved build")
			return nil
		}

		suite, err := r.buildSuiteContext(ctx, build, opts)
		if err != nil {
			log.WithError(err).WithField("suite", build.SuiteID()).Warning("could not load tests and problems, skipping suite")
			return nil
		}
		return []*chainv1.SuiteRunContext{suite}
	})
}

// latestRebuild substitutes ref with its most recent rebuild, keeping ref when the server
// has none.
func (r *Resolver) latestRebuild(ctx context.Context, ref teamcityv1.BuildRef) teamcityv1.BuildRef {
	recent := r.server.LatestRebuildOf(ctx, ref)
	if recent.IsFakeStub() {
		return ref
	}
	return recent
}

// buildTypeClaims records which build types already have a suite in the chain being
// resolved. It is shared by all workers of one resolution.
type buildTypeClaims struct {
	lock sync.Mutex
	seen sets.Set[string]
}

func newBuildTypeClaims() *buildTypeClaims {
	return &buildTypeClaims{seen: sets.New[string]()}
}

// claim reports whether buildTypeID was not claimed before, claiming it if so.
func (c *buildTypeClaims) claim(buildTypeID string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.seen.Has(buildTypeID) {
		return false
	}
	c.seen.Insert(buildTypeID)
	return true
}
