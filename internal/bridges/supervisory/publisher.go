package supervisory

import (
	"encoding/json"

	"github.com/openbench/benchlink-core/internal/infrastructure/mqtt"
	"github.com/openbench/benchlink-core/internal/instrument"
)

// Publisher pushes one instrument's snapshots and operation events onto
// the supervisory network. It implements instrument.Publisher and is
// handed to the manager at construction.
type Publisher struct {
	client MQTTClient
	topics mqtt.Topics
	logger Logger
}

// NewPublisher creates a publisher over the given MQTT connection.
func NewPublisher(client MQTTClient, logger Logger) *Publisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Publisher{client: client, logger: logger}
}

// PublishStatus publishes a status snapshot (QoS 1, retained so the
// supervisory layer always has a last-known state).
func (p *Publisher) PublishStatus(kind instrument.Kind, conn instrument.ConnectionState, snap instrument.StatusSnapshot) {
	msg := instrument.NewStatusMessage(kind, conn, &snap)

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("marshalling status failed", "kind", kind, "error", err)
		return
	}
	if err := p.client.Publish(p.topics.InstrumentStatus(string(kind)), payload, 1, true); err != nil {
		p.logger.Warn("publishing status failed", "kind", kind, "error", err)
	}
}

// PublishOperation publishes an operation lifecycle event (QoS 1, not
// retained; history is the durable record).
func (p *Publisher) PublishOperation(op instrument.Operation) {
	msg := instrument.NewOperationMessage(op)

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("marshalling operation event failed", "operation_id", op.ID, "error", err)
		return
	}
	if err := p.client.Publish(p.topics.OperationEvent(string(op.Kind)), payload, 1, false); err != nil {
		p.logger.Warn("publishing operation event failed", "operation_id", op.ID, "error", err)
	}
}
