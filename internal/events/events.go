// Package events publishes domain events to a topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Routing keys.
const (
	QuizCompleted    = "quiz.completed"
	AssignmentScored = "assignment.scored"
)

// Publisher sends events. Publish failures are auxiliary: callers log them
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
	Close() error
}

// Envelope is the JSON body of every published event.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// QuizCompletedEvent is the payload of QuizCompleted.
type QuizCompletedEvent struct {
	QuizID         int64  `json:"quiz_id"`
	UserID         string `json:"user_id"`
	Language       string `json:"language"`
	Level          string `json:"level"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions"`
}

// AssignmentScoredEvent is the payload of AssignmentScored.
type AssignmentScoredEvent struct {
	AssignmentID   int64  `json:"assignment_id"`
	UserID         string `json:"user_id"`
	Language       string `json:"language"`
	Level          string `json:"level"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions"`
}

// NewEnvelope wraps payload with a fresh id and timestamp.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    b,
	}, nil
}

// AMQP publishes to a durable topic exchange, using the event type as the
// routing key.
type AMQP struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQP dials url and declares exchange.
func NewAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQP{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQP) Publish(ctx context.Context, eventType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.Publish(p.exchange, eventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.OccurredAt,
		Type:         eventType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error                              { return nil }

// Recorder keeps published envelopes in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
	Err    error
}

func (r *Recorder) Publish(_ context.Context, eventType string, payload any) error {
	if r.Err != nil {
		return r.Err
	}
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, env)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded envelopes.
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}
