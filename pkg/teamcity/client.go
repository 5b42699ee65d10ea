// Package teamcity is a client for the TeamCity REST API, implementing the build server
// operations chain resolution needs.
package teamcity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/tcbot-dev/tchelper/pkg/apis/cache"
	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
	"github.com/tcbot-dev/tchelper/pkg/util"
)

const (
	DefaultServerURL = "http://localhost:8111"

	restPrefix = "/app/rest/latest"

	// DefaultHistoryLimit bounds how many finished builds a history listing returns.
	DefaultHistoryLimit = 100
)

// ErrBuildNotFound is returned when the server answers 404 for a build or listing.
var ErrBuildNotFound = errors.New("build not found")

// Client talks to one TeamCity server. It is safe for concurrent use.
type Client struct {
	ID           string
	BaseURL      string
	HTTPClient   *http.Client
	Token        string
	HistoryLimit int

	cache    cache.Cache
	cacheTTL time.Duration
	limiter  *util.RateLimiter
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithServerURL sets the server URL for the client
func WithServerURL(url string) Option {
	return func(c *Client) {
		c.BaseURL = strings.TrimSuffix(url, "/")
	}
}

// WithToken sets the access token sent as a bearer token
func WithToken(token string) Option {
	return func(c *Client) {
		c.Token = token
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = httpClient
	}
}

// WithCache stores finished build results in c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(client *Client) {
		client.cache = c
		client.cacheTTL = ttl
	}
}

// WithRequestInterval spaces requests at least interval apart, backing off while the
// server answers with errors.
func WithRequestInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.limiter = util.NewRateLimiter(interval)
		}
	}
}

func WithHistoryLimit(limit int) Option {
	return func(c *Client) {
		c.HistoryLimit = limit
	}
}

// New creates a client for the server identified by id.
func New(id string, opts ...Option) *Client {
	client := &Client{
		ID:      id,
		BaseURL: DefaultServerURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		HistoryLimit: DefaultHistoryLimit,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

func (c *Client) ServerID() string {
	return c.ID
}

// Close stops the request rate limiter, if any.
func (c *Client) Close() {
	c.limiter.Close()
}

// get fetches path, which is either a REST href starting with /app/rest or a path relative
// to the REST prefix, and returns the body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "/app/rest") {
		path = restPrefix + path
	}
	url := c.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")

	if err := c.limiter.Tick(ctx); err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.limiter.UpdateRate(true)
		return nil, errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()
	c.limiter.UpdateRate(resp.StatusCode >= http.StatusInternalServerError)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrap(ErrBuildNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("unexpected status code %d from %s: %s", resp.StatusCode, path, string(body))
	}

	return body, nil
}

// branchLocator renders the branch dimension of a build locator.
func branchLocator(branch string) string {
	if branch == "" || branch == teamcityv1.DefaultBranch {
		return "branch:(default:true)"
	}
	return "branch:(name:" + branch + ")"
}

func buildsPath(dimensions ...string) string {
	return "/builds?locator=" + url.QueryEscape(strings.Join(dimensions, ","))
}

// buildRefs extracts the "build" array of a listing response.
func buildRefs(body []byte) ([]teamcityv1.BuildRef, error) {
	refs := []teamcityv1.BuildRef{}
	var decodeErr error
	gjson.GetBytes(body, "build").ForEach(func(_, value gjson.Result) bool {
		var ref teamcityv1.BuildRef
		if err := json.Unmarshal([]byte(value.Raw), &ref); err != nil {
			decodeErr = errors.Wrap(err, "failed to decode build reference")
			return false
		}
		refs = append(refs, ref)
		return true
	})
	return refs, decodeErr
}

func (c *Client) listBuilds(ctx context.Context, dimensions ...string) ([]teamcityv1.BuildRef, error) {
	body, err := c.get(ctx, buildsPath(dimensions...))
	if err != nil {
		return nil, err
	}
	return buildRefs(body)
}

func (c *Client) MostRecentBuildIncludingFailedDependencies(ctx context.Context, suiteID, branch string) (*teamcityv1.BuildRef, error) {
	refs, err := c.listBuilds(ctx,
		"buildType:(id:"+suiteID+")",
		branchLocator(branch),
		"state:finished",
		"failedToStart:any",
		"defaultFilter:false",
		"count:1",
	)
	if err != nil {
		return nil, errors.Wrapf(err, "error finding most recent build of %s on %s", suiteID, branch)
	}
	if len(refs) == 0 {
		return nil, errors.Wrapf(ErrBuildNotFound, "no finished build of %s on %s", suiteID, branch)
	}
	return &refs[0], nil
}

func (c *Client) FinishedBuildsIncludingFailed(ctx context.Context, suiteID, branch string) ([]teamcityv1.BuildRef, error) {
	refs, err := c.listBuilds(ctx,
		"buildType:(id:"+suiteID+")",
		branchLocator(branch),
		"state:finished",
		"failedToStart:any",
		"defaultFilter:false",
		fmt.Sprintf("count:%d", c.HistoryLimit),
	)
	if errors.Is(err, ErrBuildNotFound) {
		return []teamcityv1.BuildRef{}, nil
	}
	return refs, err
}

func (c *Client) BuildResult(ctx context.Context, ref teamcityv1.BuildRef) (*teamcityv1.Build, error) {
	if ref.IsFakeStub() {
		return nil, errors.Wrap(ErrBuildNotFound, "stub reference")
	}
	href := ref.Href
	if href == "" {
		href = fmt.Sprintf("%s/builds/id:%d", restPrefix, ref.ID)
	}

	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, href); err == nil {
			build := &teamcityv1.Build{}
			if err := json.Unmarshal(cached, build); err == nil {
				return build, nil
			}
			log.WithField("href", href).Warning("discarding undecodable cached build")
		} else if !errors.Is(err, cache.ErrMiss) {
			log.WithError(err).WithField("href", href).Debug("build cache lookup failed")
		}
	}

	body, err := c.get(ctx, href)
	if err != nil {
		return nil, err
	}
	build := &teamcityv1.Build{}
	if err := json.Unmarshal(body, build); err != nil {
		return nil, errors.Wrapf(err, "failed to decode build %s", href)
	}

	// running builds still change, only finished results are cached
	if c.cache != nil && build.State == "finished" {
		if err := c.cache.Set(ctx, href, body, c.cacheTTL); err != nil {
			log.WithError(err).WithField("href", href).Warning("failed to cache build result")
		}
	}
	return build, nil
}

// LatestRebuildOf returns the most recent finished build of the same suite and branch
// started after ref, or a stub when there is none.
func (c *Client) LatestRebuildOf(ctx context.Context, ref teamcityv1.BuildRef) teamcityv1.BuildRef {
	if ref.IsFakeStub() || ref.BuildTypeID == "" {
		return teamcityv1.StubBuildRef()
	}
	refs, err := c.listBuilds(ctx,
		"buildType:(id:"+ref.BuildTypeID+")",
		branchLocator(ref.BranchName),
		fmt.Sprintf("sinceBuild:(id:%d)", ref.ID),
		"state:finished",
		"defaultFilter:false",
		"count:1",
	)
	if err != nil {
		log.WithError(err).WithField("build", ref.ID).Debug("no rebuild found")
		return teamcityv1.StubBuildRef()
	}
	if len(refs) == 0 {
		return teamcityv1.StubBuildRef()
	}
	return refs[0]
}

func (c *Client) Problems(ctx context.Context, href string) ([]teamcityv1.ProblemOccurrence, error) {
	body, err := c.get(ctx, href)
	if err != nil {
		return nil, err
	}
	problems := &teamcityv1.ProblemOccurrences{}
	if err := json.Unmarshal(body, problems); err != nil {
		return nil, errors.Wrapf(err, "failed to decode problems %s", href)
	}
	return problems.ProblemsNonNil(), nil
}

func (c *Client) LoadTestsAndProblems(ctx context.Context, build *teamcityv1.Build) (*chainv1.SuiteRunContext, error) {
	problems := []teamcityv1.ProblemOccurrence{}
	if build.ProblemOccurrences != nil && build.ProblemOccurrences.Href != "" {
		var err error
		problems, err = c.Problems(ctx, build.ProblemOccurrences.Href)
		if err != nil {
			return nil, errors.WithMessagef(err, "error loading problems of build %d", build.ID)
		}
	}
	return chainv1.NewSuiteRunContext(build, problems), nil
}

func (c *Client) RunningBuilds(ctx context.Context, buildTypeID, branch string) ([]teamcityv1.BuildRef, error) {
	return c.listBuilds(ctx,
		"buildType:(id:"+buildTypeID+")",
		branchLocator(branch),
		"running:true",
	)
}

// QueuedBuilds lists queued builds of buildTypeID. The queue locator has no branch
// dimension, so branches are matched on the returned references.
func (c *Client) QueuedBuilds(ctx context.Context, buildTypeID, branch string) ([]teamcityv1.BuildRef, error) {
	body, err := c.get(ctx, "/buildQueue?locator="+url.QueryEscape("buildType:(id:"+buildTypeID+")"))
	if err != nil {
		return nil, err
	}

	queued := []teamcityv1.BuildRef{}
	var decodeErr error
	gjson.GetBytes(body, "build").ForEach(func(_, value gjson.Result) bool {
		if !queuedOnBranch(value, branch) {
			return true
		}
		var ref teamcityv1.BuildRef
		if err := json.Unmarshal([]byte(value.Raw), &ref); err != nil {
			decodeErr = errors.Wrap(err, "failed to decode queued build")
			return false
		}
		queued = append(queued, ref)
		return true
	})
	return queued, decodeErr
}

func queuedOnBranch(value gjson.Result, branch string) bool {
	name := value.Get("branchName")
	if branch == "" || branch == teamcityv1.DefaultBranch {
		return !name.Exists() || value.Get("defaultBranch").Bool()
	}
	return name.String() == branch
}
