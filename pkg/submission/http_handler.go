package submission

import (
	"go.uber.org/zap"
)

type HttpHandler struct {
	logger    *zap.Logger
	db        Database
	service   *QueueService
	notifier  *Notifier
	publisher ProcessPublisher
	processor *Processor
}

func NewHttpHandler(
	logger *zap.Logger,
	db Database,
	service *QueueService,
	notifier *Notifier,
	publisher ProcessPublisher,
	processor *Processor,
) *HttpHandler {
	return &HttpHandler{
		logger:    logger.Named("http"),
		db:        db,
		service:   service,
		notifier:  notifier,
		publisher: publisher,
		processor: processor,
	}
}
