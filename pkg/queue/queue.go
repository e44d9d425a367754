package queue

import (
	"context"
	"encoding/json"
	"fmt"

	configPkg "github.com/KeynihAV/tradecore/pkg/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue is a thin wrapper over one AMQP connection with a single channel.
// The broker delivers at most one unacknowledged message at a time (Qos 1),
// so consumption through one Queue is strictly serialized.
type Queue struct {
	config      *configPkg.Config
	conn        *amqp.Connection
	ch          *amqp.Channel
	consumerTag string
}

func New(config *configPkg.Config) *Queue {
	return &Queue{config: config}
}

func (q *Queue) Init(clientName string) error {
	if q.conn != nil || q.ch != nil {
		return fmt.Errorf("queue has already been initialized")
	}

	conn, err := amqp.DialConfig(q.config.Queue.URI, amqp.Config{
		Properties: amqp.Table{"connection_name": clientName},
	})
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	err = ch.ExchangeDeclare(q.config.Queue.Exchange, "direct", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return err
	}
	_, err = ch.QueueDeclare(q.config.Queue.Queue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return err
	}
	err = ch.QueueBind(q.config.Queue.Queue, q.config.Queue.RoutingKey, q.config.Queue.Exchange, false, nil)
	if err != nil {
		conn.Close()
		return err
	}

	_, err = ch.QueueDeclare(q.config.Queue.DeadLetterQueue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return err
	}
	err = ch.QueueBind(q.config.Queue.DeadLetterQueue, q.config.Queue.DeadLetterKey, q.config.Queue.Exchange, false, nil)
	if err != nil {
		conn.Close()
		return err
	}

	err = ch.Qos(1, 0, false)
	if err != nil {
		conn.Close()
		return err
	}

	q.conn = conn
	q.ch = ch

	return nil
}

func (q *Queue) Publish(ctx context.Context, message interface{}) error {
	if q.ch == nil {
		return fmt.Errorf("queue must be initialized before use")
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return q.ch.PublishWithContext(ctx, q.config.Queue.Exchange, q.config.Queue.RoutingKey, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
}

// PublishDeadLetter forwards an already serialized message body to the dead
// letter queue.
func (q *Queue) PublishDeadLetter(ctx context.Context, body []byte) error {
	if q.ch == nil {
		return fmt.Errorf("queue must be initialized before use")
	}

	return q.ch.PublishWithContext(ctx, q.config.Queue.Exchange, q.config.Queue.DeadLetterKey, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
}

// Subscribe registers the single consumer of the queue. A nil handler result
// acknowledges the delivery, an error rejects it back onto the queue.
func (q *Queue) Subscribe(handler func(body []byte) error) error {
	if q.ch == nil {
		return fmt.Errorf("queue must be initialized before use")
	}
	if q.consumerTag != "" {
		return fmt.Errorf("queue is already registered to listen for messages")
	}

	q.consumerTag = q.config.Queue.Queue + ".consumer"
	deliveries, err := q.ch.Consume(q.config.Queue.Queue, q.consumerTag, false, false, false, false, nil)
	if err != nil {
		q.consumerTag = ""
		return err
	}

	go func() {
		for d := range deliveries {
			handleDelivery(d, handler)
		}
	}()

	return nil
}

func handleDelivery(d amqp.Delivery, handler func(body []byte) error) {
	if err := handler(d.Body); err != nil {
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func (q *Queue) Close() error {
	if q.ch != nil {
		if q.consumerTag != "" {
			q.ch.Cancel(q.consumerTag, false)
			q.consumerTag = ""
		}
		q.ch.Close()
		q.ch = nil
	}
	if q.conn != nil {
		q.conn.Close()
		q.conn = nil
	}
	return nil
}
