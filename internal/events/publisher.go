package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Event subjects. Approval and delegation events share one stream.
const (
	StreamWorkflows = "WORKFLOW_EVENTS"

	ApprovalRequested = "approval.requested"
	ApprovalForwarded = "approval.forwarded"
	ApprovalGranted   = "approval.granted"
	ApprovalRejected  = "approval.rejected"

	DelegationSubmitted = "delegation.submitted"
	DelegationApproved  = "delegation.approved"
	DelegationRejected  = "delegation.rejected"
	DelegationRevoked   = "delegation.revoked"
	DelegationExpired   = "delegation.expired"
)

// WorkflowEvent is the wire payload for approval and delegation state
// changes. Consumers (notification delivery, dashboards) subscribe to
// the subject families they care about.
type WorkflowEvent struct {
	EventType   string `json:"eventType"`
	EntityID    string `json:"entityId"`
	RequesterID string `json:"requesterId,omitempty"`
	ActorID     string `json:"actorId,omitempty"`
	ActorRole   string `json:"actorRole,omitempty"`
	Status      string `json:"status"`
	PrevStatus  string `json:"prevStatus,omitempty"`
	RequestType string `json:"requestType,omitempty"`
	Comments    string `json:"comments,omitempty"`
	OccurredAt  string `json:"occurredAt"`
}

// Publisher publishes workflow events to NATS JetStream. A nil
// Publisher is valid and drops every event, so the service runs
// without NATS configured.
type Publisher struct {
	js     nats.JetStreamContext
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewPublisher connects to NATS and ensures the workflow stream exists
func NewPublisher(url, name string, logger *logrus.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamWorkflows,
		Subjects: []string{"approval.>", "delegation.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		logger.WithError(err).Warn("Failed to ensure workflow stream")
	}

	return &Publisher{
		js:     js,
		conn:   conn,
		logger: logger.WithField("component", "events.publisher"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}

// Publish sends a workflow event asynchronously. The HTTP request
// context may already be cancelled by the time the goroutine runs, so
// publishing uses its own timeout context.
func (p *Publisher) Publish(subject string, event WorkflowEvent) {
	if p == nil || p.js == nil {
		return
	}

	event.EventType = subject
	if event.OccurredAt == "" {
		event.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data, err := json.Marshal(event)
		if err != nil {
			p.logger.WithError(err).Error("Failed to marshal workflow event")
			return
		}

		if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
			p.logger.WithFields(logrus.Fields{
				"subject":  subject,
				"entityId": event.EntityID,
			}).WithError(err).Error("Failed to publish workflow event")
		}
	}()
}
