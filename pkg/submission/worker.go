package submission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/ecmps/submission-engine/pkg/jq"
)

const (
	StreamName    = "SUBMISSIONS"
	JobsQueueName = "submissions.process"
	ConsumerName  = "submission-worker"
)

// Job is the queue message handed from the queue builder to the processing
// worker. One message per submission set.
type Job struct {
	SetID string `json:"setId"`
}

// natsPublisher implements ProcessPublisher on the job queue.
type natsPublisher struct {
	jq *jq.JobQueue
}

func NewProcessPublisher(q *jq.JobQueue) ProcessPublisher {
	return &natsPublisher{jq: q}
}

func (p *natsPublisher) PublishProcess(ctx context.Context, setID string) error {
	bytes, err := json.Marshal(Job{SetID: setID})
	if err != nil {
		return err
	}
	return p.jq.Produce(ctx, JobsQueueName, bytes, fmt.Sprintf("set-%s", setID))
}

// Worker drains the submissions stream and drives each set through the
// processor. Sets are independent so a failed set never blocks the stream.
type Worker struct {
	logger    *zap.Logger
	jq        *jq.JobQueue
	processor *Processor
}

func NewWorker(logger *zap.Logger, q *jq.JobQueue, processor *Processor) (*Worker, error) {
	ctx := context.Background()
	if err := q.Stream(ctx, StreamName, "submission set processing", []string{JobsQueueName}, 1000); err != nil {
		return nil, err
	}
	return &Worker{
		logger:    logger.Named("worker"),
		jq:        q,
		processor: processor,
	}, nil
}

func (w *Worker) Run() error {
	ctx := context.Background()

	w.logger.Info("waiting for submission jobs")

	consumeCtx, err := w.jq.Consume(
		ctx,
		"submission-service",
		StreamName,
		[]string{JobsQueueName},
		ConsumerName,
		func(msg jetstream.Msg) {
			var job Job
			if err := json.Unmarshal(msg.Data(), &job); err != nil {
				w.logger.Error("failed to unmarshal job", zap.Error(err))

				// ack anyway, redelivery cannot fix a malformed payload
				if err := msg.Ack(); err != nil {
					w.logger.Error("failed to ack message", zap.Error(err))
				}
				return
			}

			w.logger.Info("processing job", zap.String("setId", job.SetID))

			if err := w.processor.Process(ctx, job.SetID); err != nil {
				// The processor already persisted the failure on the set;
				// there is nothing more a redelivery could do.
				w.logger.Error("job failed", zap.String("setId", job.SetID), zap.Error(err))
			}

			if err := msg.Ack(); err != nil {
				w.logger.Error("failed to ack message", zap.Error(err))
			}

			w.logger.Info("job completed", zap.String("setId", job.SetID))
		},
	)
	if err != nil {
		return err
	}
	defer consumeCtx.Stop()

	select {}
}
