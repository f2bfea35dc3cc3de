package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/streadway/amqp"
)

// AMQPQueue publishes dispatch jobs to RabbitMQ.
type AMQPQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPQueue dials the broker and declares the durable dispatch queue.
func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		DispatchQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &AMQPQueue{conn: conn, channel: ch}, nil
}

func (q *AMQPQueue) PublishDispatch(job DispatchJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	err = q.channel.Publish(
		"", DispatchQueueName, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish dispatch job: %w", err)
	}
	return nil
}

// Consume delivers jobs to handler, each on its own goroutine so one slow
// job never holds up the rest; prefetch bounds how many run at once via the
// channel Qos window. A handler error nacks and requeues the job up to
// maxRetries times via the x-retry-count header.
func (q *AMQPQueue) Consume(handler func(DispatchJob) error, prefetch, maxRetries int) error {
	if prefetch < 1 {
		prefetch = 1
	}
	if err := q.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := q.channel.Consume(
		DispatchQueueName,
		"",
		false, // manual ack for reliability
		false, false, false, nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	var wg sync.WaitGroup
	for d := range msgs {
		var job DispatchJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			log.Println("[Queue] invalid dispatch job:", err)
			d.Ack(false)
			continue
		}

		wg.Add(1)
		go func(d amqp.Delivery, job DispatchJob) {
			defer wg.Done()
			if err := handler(job); err != nil {
				log.Printf("[Queue] dispatch job failed for campaign %s: %v", job.CampaignID, err)
				retryCount := 0
				if v, ok := d.Headers["x-retry-count"].(int32); ok {
					retryCount = int(v)
				}
				if retryCount < maxRetries {
					d.Nack(false, true)
					return
				}
			}
			d.Ack(false)
		}(d, job)
	}
	wg.Wait()
	return nil
}

func (q *AMQPQueue) Close() {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}

var _ Queue = (*AMQPQueue)(nil)
