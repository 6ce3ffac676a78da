package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	w         *kafka.Writer
	inbox     chan kafka.Message
	closeOnce sync.Once
	closeCh   chan struct{}
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true, // fire-and-forget for throughput; errors logged in loop
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				// Stop accepting, flush whatever is queued, then exit.
				p.Close()
				for m := range p.inbox {
					_ = p.w.WriteMessages(context.Background(), m)
				}
				_ = p.w.Close()
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				_ = p.w.WriteMessages(context.Background(), m)
			}
		}
	}()
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.inbox <- kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Close the inbox so the loop flushes remaining messages and exits cleanly.
// Safe to call more than once, and safe to race with context cancellation.
func (p *Producer) Close() {
	p.closeOnce.Do(func() { close(p.inbox) })
}

// WaitClosed blocks until the loop has drained and the writer is closed.
// Returns regardless of whether shutdown started with Close or with the
// Start context being cancelled.
func (p *Producer) WaitClosed() { <-p.closeCh }
