package flags

import (
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/tcbot-dev/tchelper/pkg/loginspection"
)

// LogInspectionFlags configure where log inspection requests are published.
type LogInspectionFlags struct {
	Brokers []string
	Topic   string
}

func NewLogInspectionFlags() *LogInspectionFlags {
	f := &LogInspectionFlags{
		Topic: loginspection.DefaultTopic,
	}
	if brokers := os.Getenv("TCHELPER_KAFKA_BROKERS"); brokers != "" {
		f.Brokers = strings.Split(brokers, ",")
	}
	return f
}

func (f *LogInspectionFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(&f.Brokers, "log-inspection-brokers", f.Brokers, "Kafka brokers receiving log inspection requests; log inspection is off when empty")
	fs.StringVar(&f.Topic, "log-inspection-topic", f.Topic, "Topic for log inspection requests")
}

func (f *LogInspectionFlags) Enabled() bool {
	return len(f.Brokers) > 0
}

// GetPublisher connects to the configured brokers. Callers close it when done.
func (f *LogInspectionFlags) GetPublisher() (*loginspection.KafkaPublisher, error) {
	return loginspection.NewKafkaPublisher(f.Brokers)
}

func (f *LogInspectionFlags) GetInspector(serverID string, publisher loginspection.Publisher) *loginspection.BrokerInspector {
	return loginspection.NewBrokerInspector(serverID, f.Topic, publisher)
}
