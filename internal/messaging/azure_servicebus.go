package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"

	"example.com/studyabroad/services/applications/config"
	"example.com/studyabroad/services/applications/internal/models"
)

// EventEnvelope is the wire form of an application audit event sent to
// downstream services (documents sync, notifications).
type EventEnvelope struct {
	EventID       string  `json:"event_id"`
	ApplicationID string  `json:"application_id"`
	ActorID       string  `json:"actor_id"`
	EventType     string  `json:"event_type"`
	FromStatus    *string `json:"from_status,omitempty"`
	ToStatus      *string `json:"to_status,omitempty"`
	Note          string  `json:"note,omitempty"`
	OccurredAt    string  `json:"occurred_at"`
}

// NewEventEnvelope builds the envelope for an audit event.
func NewEventEnvelope(event *models.Event) EventEnvelope {
	env := EventEnvelope{
		EventID:       event.ID.String(),
		ApplicationID: event.ApplicationID.String(),
		ActorID:       event.ActorID.String(),
		EventType:     event.EventType,
		Note:          event.Note,
		OccurredAt:    event.CreatedAt.UTC().Format(time.RFC3339),
	}
	if event.FromStatus != nil {
		from := string(*event.FromStatus)
		env.FromStatus = &from
	}
	if event.ToStatus != nil {
		to := string(*event.ToStatus)
		env.ToStatus = &to
	}
	return env
}

// EventPublisher forwards application events to downstream consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, envelope EventEnvelope) error
	Close() error
}

// ServiceBusPublisher publishes event envelopes to an Azure Service Bus
// queue.
type ServiceBusPublisher struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

// NewServiceBusPublisher creates a publisher for the configured queue.
func NewServiceBusPublisher(cfg config.AzureConfig) (*ServiceBusPublisher, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &ServiceBusPublisher{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
	}, nil
}

// PublishEvent implements EventPublisher.
func (p *ServiceBusPublisher) PublishEvent(ctx context.Context, envelope EventEnvelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event envelope")
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"event_type": envelope.EventType,
			"source":     "applications",
			"time":       time.Now().UTC().Format(time.RFC3339),
		},
	}

	if err := p.sender.SendMessage(ctx, msg, nil); err != nil {
		return errors.Wrap(err, "failed to send event to Service Bus")
	}
	return nil
}

// Close closes the sender and client.
func (p *ServiceBusPublisher) Close() error {
	if p.sender != nil {
		if err := p.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if p.client != nil {
		return p.client.Close(context.Background())
	}
	return nil
}
