// Package loginspection hands build logs of crashed, timed out or out of memory suites
// to an external log analyzer through a message broker.
package loginspection

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
)

const DefaultTopic = "tchelper.log-inspection"

// Reasons reported in a request.
const (
	ReasonJvmCrash = "jvm-crash"
	ReasonTimeout  = "timeout"
	ReasonOome     = "oome"
)

// Publisher sends one keyed message to a topic and returns once the broker accepted it.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Request asks the log analyzer to inspect the log of one build.
type Request struct {
	ID          string    `json:"id"`
	Server      string    `json:"server"`
	BuildID     int64     `json:"buildId"`
	SuiteID     string    `json:"suiteId"`
	SuiteName   string    `json:"suiteName"`
	Branch      string    `json:"branch,omitempty"`
	WebURL      string    `json:"webUrl,omitempty"`
	Reasons     []string  `json:"reasons"`
	RequestedAt time.Time `json:"requestedAt"`
}

// NewRequest describes suite on serverID, with a fresh request id.
func NewRequest(serverID string, suite *chainv1.SuiteRunContext) Request {
	reasons := []string{}
	if suite.HasJvmCrashProblem() {
		reasons = append(reasons, ReasonJvmCrash)
	}
	if suite.HasTimeoutProblem() {
		reasons = append(reasons, ReasonTimeout)
	}
	if suite.HasOomeProblem() {
		reasons = append(reasons, ReasonOome)
	}
	return Request{
		ID:          uuid.NewString(),
		Server:      serverID,
		BuildID:     suite.BuildID,
		SuiteID:     suite.SuiteID,
		SuiteName:   suite.SuiteName,
		Branch:      suite.Branch,
		WebURL:      suite.WebURL,
		Reasons:     reasons,
		RequestedAt: time.Now().UTC(),
	}
}

// BrokerInspector publishes a Request per inspected suite. Messages are keyed by server
// and build id so requests for one build land on the same partition.
type BrokerInspector struct {
	serverID  string
	topic     string
	publisher Publisher
}

func NewBrokerInspector(serverID, topic string, publisher Publisher) *BrokerInspector {
	if topic == "" {
		topic = DefaultTopic
	}
	return &BrokerInspector{
		serverID:  serverID,
		topic:     topic,
		publisher: publisher,
	}
}

func (b *BrokerInspector) InspectBuildLog(ctx context.Context, suite *chainv1.SuiteRunContext) error {
	req := NewRequest(b.serverID, suite)
	value, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to encode log inspection request")
	}

	key := req.Server + "/" + req.SuiteID + "/" + strconv.FormatInt(req.BuildID, 10)
	if err := b.publisher.Publish(ctx, b.topic, key, value); err != nil {
		return errors.Wrapf(err, "failed to publish log inspection request for build %d", suite.BuildID)
	}

	log.WithFields(log.Fields{
		"request": req.ID,
		"suite":   req.SuiteID,
		"buildId": req.BuildID,
		"reasons": req.Reasons,
	}).Debug("log inspection requested")
	return nil
}
