package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	appCtx "github.com/baechuer/artfront/services/visitor-state/internal/pkg/context"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange = "artfront.notifications"

	RoutingKeyAbandonedCart = "cart.abandoned"

	producerName = "visitor-state"

	// upper bound on waiting for the broker to confirm one publish
	confirmWait = 5 * time.Second
)

var (
	ErrNoRoute        = errors.New("publish not routed")
	ErrNack           = errors.New("publish nack")
	ErrConfirmTimeout = errors.New("publish confirm timeout")
)

// confirmation is the broker's answer to one publish.
type confirmation interface {
	Done() <-chan struct{}
	Acked() bool
}

type channel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (confirmation, error)
	Close() error
}

// amqpChannel adapts *amqp.Channel to channel.
type amqpChannel struct {
	*amqp.Channel
}

func (c amqpChannel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.Channel.PublishWithDeferredConfirmWithContext(ctx, exchange, key, mandatory, immediate, msg)
	if err != nil || dc == nil {
		return nil, err
	}
	return dc, nil
}

// Publisher hands eligible abandoned-cart pairs to the notification
// delivery service. It never delivers anything itself.
type Publisher struct {
	exchange string

	mu sync.Mutex

	conn *amqp.Connection
	ch   channel

	returnCh <-chan amqp.Return
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{
		exchange: exchange,
		conn:     conn,
		ch:       amqpChannel{ch},
		returnCh: ch.NotifyReturn(make(chan amqp.Return, 8)),
	}, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

func (p *Publisher) PublishAbandonedCart(ctx context.Context, n domain.PendingNotification) error {
	messageID := uuid.NewString()
	body, err := encodeAbandonedCart(ctx, messageID, n, time.Now().UTC())
	if err != nil {
		return err
	}
	return p.publish(ctx, RoutingKeyAbandonedCart, messageID, body)
}

func (p *Publisher) publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return errors.New("publisher channel not ready")
	}

	conf, err := p.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		p.exchange,
		routingKey,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:    messageID,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return err
	}
	if conf == nil {
		return errors.New("publisher confirms not enabled")
	}

	timer := time.NewTimer(confirmWait)
	defer timer.Stop()
	select {
	case <-conf.Done():
	case <-timer.C:
		return ErrConfirmTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	if !conf.Acked() {
		return ErrNack
	}
	// The broker sends basic.return ahead of the ack for an unroutable
	// message, so any return for this publish is already buffered.
	return p.drainReturns(messageID)
}

// drainReturns empties the return buffer and reports whether one of the
// returns belongs to messageID. Returns for earlier messages are dropped.
func (p *Publisher) drainReturns(messageID string) error {
	var routeErr error
	for {
		select {
		case ret, ok := <-p.returnCh:
			if !ok {
				return routeErr
			}
			if ret.MessageId == messageID {
				routeErr = fmt.Errorf("%w: %s", ErrNoRoute, ret.RoutingKey)
			}
		default:
			return routeErr
		}
	}
}

func encodeAbandonedCart(ctx context.Context, messageID string, n domain.PendingNotification, now time.Time) ([]byte, error) {
	return json.Marshal(Envelope[AbandonedCartPayload]{
		Version:    1,
		Producer:   producerName,
		TraceID:    appCtx.GetRequestID(ctx),
		MessageID:  messageID,
		OccurredAt: now,
		Payload: AbandonedCartPayload{
			DeviceID: n.DeviceID,
			ItemID:   n.ItemID,
		},
	})
}
