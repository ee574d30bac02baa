package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bankportal/idcore/internal/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// smsMessage is the body consumed by the SMS gateway
type smsMessage struct {
	ID   string `json:"id"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// AMQPPublisher publishes SMS requests to a durable RabbitMQ queue
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	mu    sync.Mutex
}

// DialAMQP connects to the broker and declares the SMS queue
func DialAMQP(cfg config.SMSConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, queue: cfg.Queue}, nil
}

// PublishSMS enqueues one text message for the gateway
func (p *AMQPPublisher) PublishSMS(ctx context.Context, to, body string) error {
	msg := smsMessage{ID: uuid.New().String(), To: to, Body: body}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode sms: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    time.Now().UTC(),
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish sms: %w", err)
	}
	return nil
}

// Close releases the channel and connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
