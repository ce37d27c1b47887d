package submission

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ecmps/submission-engine/pkg/email"
	"github.com/ecmps/submission-engine/pkg/httpserver"
	"github.com/ecmps/submission-engine/pkg/jq"
	"github.com/ecmps/submission-engine/pkg/postgres"
)

var (
	PostgreSQLHost     = os.Getenv("POSTGRESQL_HOST")
	PostgreSQLPort     = os.Getenv("POSTGRESQL_PORT")
	PostgreSQLDb       = os.Getenv("POSTGRESQL_DB")
	PostgreSQLUser     = os.Getenv("POSTGRESQL_USERNAME")
	PostgreSQLPassword = os.Getenv("POSTGRESQL_PASSWORD")
	PostgreSQLSSLMode  = os.Getenv("POSTGRESQL_SSLMODE")

	NATSURL = os.Getenv("NATS_URL")

	SendGridAPIKey     = os.Getenv("SENDGRID_API_KEY")
	SendGridSender     = os.Getenv("SENDGRID_SENDER")
	SendGridSenderName = os.Getenv("SENDGRID_SENDER_NAME")
	ClientName         = os.Getenv("CLIENT_NAME")
	AppBaseURL         = os.Getenv("APP_BASE_URL")

	AuthAPIKey         = os.Getenv("AUTH_API_KEY")
	ReportRendererURL  = os.Getenv("REPORT_RENDERER_URL")
	SigningGatewayURL  = os.Getenv("SIGNING_GATEWAY_URL")
	SigningGatewayKey  = os.Getenv("SIGNING_GATEWAY_API_KEY")
	ScratchDirectory   = os.Getenv("SCRATCH_DIRECTORY")

	S3Region        = os.Getenv("S3_REGION")
	S3Endpoint      = os.Getenv("S3_ENDPOINT")
	S3AccessKey     = os.Getenv("S3_ACCESS_KEY")
	S3AccessSecret  = os.Getenv("S3_ACCESS_SECRET")
	S3ImportBucket  = os.Getenv("S3_IMPORT_BUCKET")
	S3ArchiveBucket = os.Getenv("S3_ARCHIVE_BUCKET")

	HttpAddress = os.Getenv("HTTP_ADDRESS")
)

func Command() *cobra.Command {
	return &cobra.Command{
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return start()
		},
	}
}

func start() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("new logger: %w", err)
	}
	logger = logger.Named("submission")

	orm, err := postgres.NewClient(&postgres.Config{
		Host:     PostgreSQLHost,
		Port:     PostgreSQLPort,
		DB:       PostgreSQLDb,
		Username: PostgreSQLUser,
		Password: PostgreSQLPassword,
		SSLMode:  PostgreSQLSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("new postgres client: %w", err)
	}
	logger.Info("connected to the postgres database", zap.String("database", PostgreSQLDb))

	db := NewDatabase(orm)
	if err := db.Initialize(); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	queue, err := jq.New(NATSURL, logger)
	if err != nil {
		return fmt.Errorf("new job queue: %w", err)
	}
	defer queue.Close()

	emailService := email.NewSendGridClient(SendGridAPIKey, SendGridSender, SendGridSenderName, logger)
	notifier := NewNotifier(logger, db, emailService, ClientName, AppBaseURL)
	failures := NewFailureHandler(logger, db, notifier)
	publisher := NewProcessPublisher(queue)
	service := NewQueueService(logger, db, publisher, failures)

	store, err := NewS3ObjectStore(S3Config{
		Region:        S3Region,
		Endpoint:      S3Endpoint,
		AccessKey:     S3AccessKey,
		AccessSecret:  S3AccessSecret,
		ImportBucket:  S3ImportBucket,
		ArchiveBucket: S3ArchiveBucket,
	})
	if err != nil {
		return fmt.Errorf("new object store: %w", err)
	}

	renderer := NewRendererClient(ReportRendererURL, AuthAPIKey)
	signer := NewSigningClient(SigningGatewayURL, SigningGatewayKey, logger)
	processor := NewProcessor(logger, db, renderer, signer, store, notifier, ScratchDirectory)

	worker, err := NewWorker(logger, queue, processor)
	if err != nil {
		return fmt.Errorf("new worker: %w", err)
	}
	go func() {
		if err := worker.Run(); err != nil {
			logger.Fatal("worker stopped", zap.Error(err))
		}
	}()

	handler := NewHttpHandler(logger, db, service, notifier, publisher, processor)

	return httpserver.RegisterAndStart(logger, HttpAddress, handler)
}
