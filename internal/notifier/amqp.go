package notifier

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes events to a topic exchange; the dispatcher
// service consumes them and does the actual delivery.
type AMQPNotifier struct {
	ch       *amqp.Channel
	exchange string
	log      *slog.Logger
}

func NewAMQPNotifier(conn *amqp.Connection, exchange string, log *slog.Logger) (*AMQPNotifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &AMQPNotifier{ch: ch, exchange: exchange, log: log}, nil
}

func (n *AMQPNotifier) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = n.ch.PublishWithContext(ctx, n.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		// Post-commit path: log and move on, delivery is retried by
		// the dispatcher side once the broker is back.
		n.log.Error("notify publish failed", "event", ev.Type, "err", err)
	}
	return err
}

func (n *AMQPNotifier) Close() error { return n.ch.Close() }
