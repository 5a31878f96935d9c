package target

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"metrify/internal/frame"
	"metrify/internal/metric"
	"metrify/internal/telemetry"
)

var amqpTracer = otel.Tracer("metrify/target")

// AMQPTarget publishes each saved metric batch as one JSON message to a
// queue. It is write-only: LoadMetrics always returns an empty snapshot,
// so compute functions bound to this target see no history.
type AMQPTarget struct {
	id     string
	url    string
	queue  string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

// metricBatch is the wire shape of one published save.
type metricBatch struct {
	MetricID string           `json:"metricId"`
	SourceID string           `json:"sourceId"`
	SavedAt  time.Time        `json:"savedAt"`
	Rows     []map[string]any `json:"rows"`
}

func NewAMQPTarget(id, url, queue string, logger *slog.Logger) *AMQPTarget {
	return &AMQPTarget{id: id, url: url, queue: queue, logger: logger}
}

func (t *AMQPTarget) ID() string { return t.id }

// LoadMetrics returns an empty snapshot with the default metric columns.
func (t *AMQPTarget) LoadMetrics(ctx context.Context, metricID, sourceID string) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	return frame.New(metric.DefaultColumns...), nil
}

// SaveMetrics publishes the batch with retry. The message is durable
// and carries the trace context of the run.
func (t *AMQPTarget) SaveMetrics(ctx context.Context, metricID, sourceID string, rows frame.Frame) error {
	ctx, span := amqpTracer.Start(ctx, "amqp_target.save",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", t.queue),
			attribute.String("metrify.metric_id", metricID),
			attribute.String("metrify.source_id", sourceID),
		),
	)
	defer span.End()

	body, err := json.Marshal(metricBatch{
		MetricID: metricID,
		SourceID: sourceID,
		SavedAt:  time.Now().UTC(),
		Rows:     rows.Records(),
	})
	if err != nil {
		return fmt.Errorf("amqp target %s: marshal batch: %w", t.id, err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 300 * time.Millisecond
	exp.MaxInterval = 5 * time.Second
	exp.MaxElapsedTime = 30 * time.Second

	pub := func() error {
		ch, err := t.channel(ctx)
		if err != nil {
			span.RecordError(err)
			return err
		}
		defer ch.Close()

		if _, err := ch.QueueDeclare(t.queue, true, false, false, false, nil); err != nil {
			span.RecordError(err)
			return err
		}

		msg := amqp.Publishing{
			Body:         body,
			ContentType:  "application/json",
			Headers:      telemetry.InjectAMQPContext(ctx, amqp.Table{}),
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			DeliveryMode: amqp.Persistent,
		}
		if err := ch.PublishWithContext(ctx, "", t.queue, false, false, msg); err != nil {
			span.RecordError(err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return pub()
	}, backoff.WithContext(exp, ctx)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("amqp target %s: publish: %w", t.id, err)
	}

	t.logger.Debug("metric batch published",
		"target_id", t.id, "queue", t.queue, "rows", rows.NumRows())
	return nil
}

func (t *AMQPTarget) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := t.connection(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Channel()
}

func (t *AMQPTarget) connection(ctx context.Context) (*amqp.Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && !t.conn.IsClosed() {
		return t.conn, nil
	}

	conn, err := amqp.DialConfig(t.url, amqp.Config{
		Properties: amqp.Table{
			"connection_name": "metrify",
		},
		Dial: amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	t.conn = conn
	return conn, nil
}

// Close shuts the connection down if one was opened.
func (t *AMQPTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil && !t.conn.IsClosed() {
		return t.conn.Close()
	}
	return nil
}

var _ metric.Target = (*AMQPTarget)(nil)
