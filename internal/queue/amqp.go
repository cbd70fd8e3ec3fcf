package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes JSON messages to durable RabbitMQ queues named after the topic.
// Subscribers receive the raw body as json.RawMessage; use DecodePayload.
type AMQPQueue struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	ch         *amqp.Channel
	maxRetries int
	declared   map[string]bool
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, maxRetries: 3, declared: map[string]bool{}}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
}

// Subscribe consumes with manual acks. A failed delivery is republished with an
// incremented retry header until maxRetries, then dropped.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			if err := handler(json.RawMessage(d.Body)); err != nil {
				retries := retryCount(d.Headers)
				if retries < q.maxRetries {
					log.Printf("⚠️ %s delivery failed (attempt %d/%d): %v", topic, retries+1, q.maxRetries, err)
					if pubErr := q.publish(topic, d.Body, retries+1); pubErr != nil {
						log.Println("❌ Failed to requeue delivery:", pubErr)
						d.Nack(false, true)
						continue
					}
				} else {
					log.Printf("❌ %s delivery dropped after %d attempts: %v", topic, q.maxRetries, err)
				}
			}
			d.Ack(false)
		}
	}()
	return nil
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ch.Close()
	return q.conn.Close()
}

var (
	_ Queue = (*InMemoryQueue)(nil)
	_ Queue = (*AMQPQueue)(nil)
)
