package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const producerName = "barpos-server"

// Producer publishes order events to Kafka through a buffered inbox so the
// request path never blocks on the broker. A nil *Producer is valid and drops
// every event, which keeps event publishing optional in deployments without
// Kafka.
//
// The inbox channel is never closed: Publish may race with shutdown (HTTP
// drain keeps serving requests after the signal context is cancelled), so
// late publishes are refused via the closed flag instead of a channel close.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the delivery loop until ctx is cancelled, then flushes the
// remaining inbox before closing the writer.
func (p *Producer) Start(ctx context.Context) {
	if p == nil {
		return
	}
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.closed = true
				p.mu.Unlock()
				p.drain()
				return
			case m := <-p.inbox:
				p.deliver(m)
			}
		}
	}()
}

// drain delivers whatever is buffered at shutdown, then closes the writer.
// The closed flag is already set, so no new message can slip in behind it.
func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.deliver(m)
		default:
			if err := p.w.Close(); err != nil {
				log.Printf("[EVENTS] writer close failed: %v", err)
			}
			return
		}
	}
}

func (p *Producer) deliver(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		log.Printf("[EVENTS] publish failed: %v", err)
	}
}

// Publish enqueues one event, wrapped in an Envelope and keyed by the event's
// correlation id so per-order ordering is preserved within a partition.
// Safe to call on a nil Producer and after shutdown; a full inbox or a
// stopped producer drops the event with a log line rather than stalling or
// panicking in the caller.
func (p *Producer) Publish(eventType string, payload any) {
	if p == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[EVENTS] failed to marshal %s payload: %v", eventType, err)
		return
	}

	correlationID := correlationFor(payload)
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: correlationID,
		Payload:       raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		log.Printf("[EVENTS] failed to marshal %s envelope: %v", eventType, err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(correlationID),
		Value: value,
		Time:  time.Now(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		log.Printf("[EVENTS] producer stopped, dropping %s for %s", eventType, correlationID)
		return
	}
	select {
	case p.inbox <- msg:
	default:
		log.Printf("[EVENTS] inbox full, dropping %s for %s", eventType, correlationID)
	}
}

// WaitClosed blocks until the delivery loop has flushed and exited.
func (p *Producer) WaitClosed() {
	if p == nil {
		return
	}
	<-p.closeCh
}

func correlationFor(payload any) string {
	switch v := payload.(type) {
	case OrderOpened:
		return fmt.Sprintf("%d", v.OrderID)
	case OrderClosed:
		return fmt.Sprintf("%d", v.OrderID)
	case QuickSaleCompleted:
		return fmt.Sprintf("%d", v.OrderID)
	}
	return ""
}
