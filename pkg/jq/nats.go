package jq

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

type JobQueue struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

func New(url string, logger *zap.Logger) (*JobQueue, error) {
	jq := &JobQueue{
		conn:   nil,
		js:     nil,
		logger: logger.Named("jq"),
	}

	conn, err := nats.Connect(
		url,
		nats.ReconnectHandler(jq.reconnectHandler),
		nats.DisconnectErrHandler(jq.disconnectHandler),
	)
	if err != nil {
		return nil, err
	}

	jq.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, err
	}
	jq.js = js

	return jq, nil
}

func (jq *JobQueue) reconnectHandler(nc *nats.Conn) {
	jq.logger.Info("got reconnected", zap.String("url", nc.ConnectedUrl()))
}

func (jq *JobQueue) disconnectHandler(_ *nats.Conn, err error) {
	jq.logger.Error("got disconnected", zap.Error(err))
}

// Stream creates or updates the named stream bound to the given topics.
func (jq *JobQueue) Stream(ctx context.Context, name, description string, topics []string, maxMsgs int64) error {
	_, err := jq.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: description,
		Subjects:    topics,
		MaxMsgs:     maxMsgs,
		Retention:   jetstream.WorkQueuePolicy,
	})
	return err
}

// Consume creates a durable consumer on the stream and starts handling
// messages. The caller owns acking inside the handler.
func (jq *JobQueue) Consume(
	ctx context.Context,
	service string,
	stream string,
	topics []string,
	consumer string,
	handler func(jetstream.Msg),
) (jetstream.ConsumeContext, error) {
	c, err := jq.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Name:           consumer,
		Durable:        consumer,
		FilterSubjects: topics,
		AckPolicy:      jetstream.AckExplicitPolicy,
		AckWait:        time.Hour,
		MaxDeliver:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", service, err)
	}

	return c.Consume(handler)
}

// Produce publishes the payload on the topic. The id deduplicates redeliveries
// within the stream's dedup window.
func (jq *JobQueue) Produce(ctx context.Context, topic string, data []byte, id string) error {
	_, err := jq.js.Publish(ctx, topic, data, jetstream.WithMsgID(id))
	return err
}

func (jq *JobQueue) Close() {
	if jq.conn != nil {
		jq.conn.Close()
	}
}
