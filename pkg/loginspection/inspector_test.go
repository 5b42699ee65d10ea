package loginspection

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainv1 "github.com/tcbot-dev/tchelper/pkg/apis/chain/v1"
	teamcityv1 "github.com/tcbot-dev/tchelper/pkg/apis/teamcity/v1"
)

type message struct {
	topic, key string
	value      []byte
}

type recordingPublisher struct {
	lock     sync.Mutex
	err      error
	messages []message
}

func (r *recordingPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, message{topic: topic, key: key, value: value})
	return nil
}

func suiteWith(problemTypes ...string) *chainv1.SuiteRunContext {
	s := &chainv1.SuiteRunContext{
		SuiteID:   "Tests_Cache",
		SuiteName: "Cache",
		BuildID:   4242,
		Branch:    teamcityv1.MasterBranch,
	}
	for _, t := range problemTypes {
		s.Problems = append(s.Problems, teamcityv1.ProblemOccurrence{Type: t})
	}
	return s
}

func TestNewRequestReasons(t *testing.T) {
	tests := []struct {
		name     string
		problems []string
		expected []string
	}{
		{name: "crash", problems: []string{teamcityv1.ProblemJvmCrash}, expected: []string{ReasonJvmCrash}},
		{
			name:     "timeout and oome",
			problems: []string{teamcityv1.ProblemOutOfMemory, teamcityv1.ProblemFailedTests, teamcityv1.ProblemExecutionTimeout},
			expected: []string{ReasonTimeout, ReasonOome},
		},
		{name: "none", problems: []string{teamcityv1.ProblemExitCode}, expected: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest("public", suiteWith(tt.problems...))
			assert.Equal(t, tt.expected, req.Reasons)
			assert.Equal(t, "public", req.Server)
			_, err := uuid.Parse(req.ID)
			assert.NoError(t, err)
		})
	}
}

func TestBrokerInspectorPublishes(t *testing.T) {
	publisher := &recordingPublisher{}
	inspector := NewBrokerInspector("public", "", publisher)

	require.NoError(t, inspector.InspectBuildLog(context.TODO(), suiteWith(teamcityv1.ProblemJvmCrash)))

	require.Len(t, publisher.messages, 1)
	msg := publisher.messages[0]
	assert.Equal(t, DefaultTopic, msg.topic)
	assert.Equal(t, "public/Tests_Cache/4242", msg.key)

	var req Request
	require.NoError(t, json.Unmarshal(msg.value, &req))
	assert.Equal(t, int64(4242), req.BuildID)
	assert.Equal(t, "Cache", req.SuiteName)
	assert.Equal(t, teamcityv1.MasterBranch, req.Branch)
	assert.Equal(t, []string{ReasonJvmCrash}, req.Reasons)
}

func TestBrokerInspectorPublishFailure(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	inspector := NewBrokerInspector("public", "custom", publisher)

	err := inspector.InspectBuildLog(context.TODO(), suiteWith(teamcityv1.ProblemOutOfMemory))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil)
	assert.Error(t, err)
}
