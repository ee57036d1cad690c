package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"gwi.com/onboarding-backend/internal/platform/logger"
)

// AnalysisRequest is the message body on the analysis queue.
type AnalysisRequest struct {
	RepoURL string   `json:"repo_url"`
	Levels  []string `json:"levels,omitempty"`
}

type AnalysisQueue struct {
	conn  *amqp.Connection
	queue string

	mu    sync.Mutex // amqp channels are not safe for concurrent publishing
	pubCh *amqp.Channel

	log *logger.Logger
}

func NewAnalysisQueue(url, queue string, log *logger.Logger) (*AnalysisQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error dialling rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening rabbitmq channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		conn.Close()
		return nil, err
	}
	return &AnalysisQueue{conn: conn, queue: queue, pubCh: ch, log: log.With("service", "AnalysisQueue", "queue", queue)}, nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable (survives broker restarts)
		false, // auto-delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return nil
}

func (q *AnalysisQueue) Publish(ctx context.Context, req AnalysisRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode analysis request: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.pubCh.Publish(
		"",      // default exchange
		q.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish analysis request: %w", err)
	}
	q.log.Info("queued codebase analysis", "repo_url", req.RepoURL)
	return nil
}

// Consume processes requests one at a time until ctx is cancelled or the channel closes.
func (q *AnalysisQueue) Consume(ctx context.Context, analyzer Analyzer) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("error opening rabbitmq channel: %w", err)
	}
	defer ch.Close()
	if err := declare(ch, q.queue); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		q.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("error consuming rabbitmq messages: %w", err)
	}

	q.log.Info("analysis consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("analysis queue channel closed")
			}
			handleDelivery(ctx, analyzer, q.log, d.Body, d.Redelivered, d)
		}
	}
}

func (q *AnalysisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pubCh != nil {
		q.pubCh.Close()
	}
	return q.conn.Close()
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type outcome string

const (
	outcomeDone      outcome = "done"
	outcomeRejected  outcome = "rejected"
	outcomeRequeued  outcome = "requeued"
	outcomeAbandoned outcome = "abandoned"
)

// handleDelivery acks successful analyses, rejects malformed messages and requeues a failed
// analysis once. A redelivered message that fails again is dropped.
func handleDelivery(ctx context.Context, analyzer Analyzer, log *logger.Logger, body []byte, redelivered bool, ack acknowledger) outcome {
	var req AnalysisRequest
	if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.RepoURL) == "" {
		log.Error("rejecting malformed analysis request", "error", err, "body", string(body))
		_ = ack.Nack(false, false)
		return outcomeRejected
	}

	analysis, err := analyzer.AnalyzeAndStore(ctx, req.RepoURL, req.Levels)
	if err != nil {
		if redelivered {
			log.Error("analysis failed again, dropping request", "repo_url", req.RepoURL, "error", err)
			_ = ack.Nack(false, false)
			return outcomeAbandoned
		}
		log.Warn("analysis failed, requeueing", "repo_url", req.RepoURL, "error", err)
		_ = ack.Nack(false, true)
		return outcomeRequeued
	}

	if err := ack.Ack(false); err != nil {
		log.Warn("failed to ack analysis request", "repo_url", req.RepoURL, "error", err)
	}
	log.Info("processed queued analysis", "repo_url", req.RepoURL, "analysis_id", analysis.AnalysisID)
	return outcomeDone
}
