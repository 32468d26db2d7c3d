package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"incident-report-bot/models"

	"github.com/apex/log"
	"github.com/streadway/amqp"
)

const publishTimeout = 30 * time.Second

// Publisher sends run events to a durable direct exchange, reconnecting when the connection drops.
type Publisher struct {
	mu         sync.Mutex
	amqpURL    string
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	log        log.Interface
}

func NewPublisher(amqpURL, exchange, routingKey string, logger log.Interface) (*Publisher, error) {
	p := &Publisher{
		amqpURL:    amqpURL,
		exchange:   exchange,
		routingKey: routingKey,
		log:        logger,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// PublishRunEvent publishes ev as persistent JSON with the configured routing key.
func (p *Publisher) PublishRunEvent(ctx context.Context, ev models.RunEvent) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg, err := newPublishing(ev, time.Now())
	if err != nil {
		return err
	}
	if err := p.publish(ctx, msg); err != nil {
		return err
	}
	p.log.WithFields(log.Fields{"date": ev.Date, "state": ev.State}).Debug("Run event published")
	return nil
}

func newPublishing(ev models.RunEvent, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal run event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Type:         "run." + ev.State,
	}, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}

func (p *Publisher) connectLocked() error {
	conn, err := amqp.Dial(p.amqpURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

func (p *Publisher) resetLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, amqp.ErrClosed) || strings.Contains(err.Error(), "channel/connection is not open")
}

func (p *Publisher) publish(ctx context.Context, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.channel == nil {
		p.resetLocked()
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	err := p.channel.Publish(p.exchange, p.routingKey, false, false, msg)
	if isConnClosedErr(err) {
		p.log.WithError(err).Warn("RabbitMQ connection lost, reconnecting")
		p.resetLocked()
		if connErr := p.connectLocked(); connErr != nil {
			return fmt.Errorf("failed to publish run event: %w (reconnect failed: %v)", err, connErr)
		}
		err = p.channel.Publish(p.exchange, p.routingKey, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("context done while publishing run event: %w", ctx.Err())
	}
	return nil
}
