// Package events publishes order status events to the message bus.
// Publishing is best-effort: downstream consumers (analytics, admin
// dashboard) tolerate gaps, so a send failure is logged and dropped.
package events

import (
	"context"
	"encoding/json"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/sirupsen/logrus"

	"github.com/cicekpazari/orderservice/pkg/model"
)

const statusEventTopic = "order_status_events"

// MQProducer is the slice of the RocketMQ producer we use.
type MQProducer interface {
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
}

type StatusPublisher struct {
	producer MQProducer
	log      *logrus.Entry
}

func NewStatusPublisher(producer MQProducer, log *logrus.Logger) *StatusPublisher {
	return &StatusPublisher{
		producer: producer,
		log:      log.WithField("component", "StatusPublisher"),
	}
}

// PublishStatusChange emits an order status event keyed by order number.
func (p *StatusPublisher) PublishStatusChange(ctx context.Context, ev model.OrderStatusEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Errorf("Failed to marshal status event for order %s: %v", ev.OrderNumber, err)
		return
	}

	msg := primitive.NewMessage(statusEventTopic, data)
	msg.WithKeys([]string{ev.OrderNumber})

	res, err := p.producer.SendSync(ctx, msg)
	if err != nil {
		p.log.Errorf("Failed to send status event (%s -> %s) for order %s: %v", ev.OldStatus, ev.NewStatus, ev.OrderNumber, err)
		return
	}
	p.log.Debugf("Sent status event (%s -> %s) for order %s. MsgID: %s", ev.OldStatus, ev.NewStatus, ev.OrderNumber, res.MsgID)
}
