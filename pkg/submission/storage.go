package submission

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ObjectStore moves MATS bulk files between the import bucket and the
// official archive bucket. Objects are keyed {monPlanId}/{testNumber}/{fileName}.
type ObjectStore interface {
	GetImportObject(ctx context.Context, key string) ([]byte, error)
	PutArchiveObject(ctx context.Context, key string, body []byte) error
}

type S3Config struct {
	Region        string
	Endpoint      string
	AccessKey     string
	AccessSecret  string
	ImportBucket  string
	ArchiveBucket string
}

type s3Store struct {
	client        *s3.S3
	uploader      *s3manager.Uploader
	importBucket  string
	archiveBucket string
}

func NewS3ObjectStore(cfg S3Config) (ObjectStore, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var awsConfig *aws.Config
	if cfg.AccessKey == "" || cfg.AccessSecret == "" {
		awsConfig = &aws.Config{
			Region: aws.String(cfg.Region),
		}
	} else {
		awsConfig = &aws.Config{
			Endpoint:    aws.String(cfg.Endpoint),
			Region:      aws.String(cfg.Region),
			Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.AccessSecret, ""),
		}
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}

	return &s3Store{
		client:        s3.New(sess),
		uploader:      s3manager.NewUploader(sess),
		importBucket:  cfg.ImportBucket,
		archiveBucket: cfg.ArchiveBucket,
	}, nil
}

func (s *s3Store) GetImportObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.importBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get import object %s: %w", key, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (s *s3Store) PutArchiveObject(ctx context.Context, key string, body []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.archiveBucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("put archive object %s: %w", key, err)
	}
	return nil
}
