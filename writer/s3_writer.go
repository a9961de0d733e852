package writer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "arbiflow/config"
	"arbiflow/logger"
	"arbiflow/models"
)

// S3Writer uploads encoded report files to the configured results bucket,
// partitioned by run date.
type S3Writer struct {
	config   *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
}

// NewS3Writer configures the AWS SDK and validates that credentials resolve.
func NewS3Writer(ctx context.Context, cfg *appconfig.Config) (*S3Writer, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Storage.S3.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
			o.UsePathStyle = cfg.Storage.S3.PathStyle
		})
	}

	w := &S3Writer{
		config:   cfg,
		s3Client: s3.NewFromConfig(awsConfig, s3Opts...),
		log:      log,
	}

	log.WithComponent("s3_writer").WithFields(logger.Fields{
		"bucket": cfg.Storage.S3.Bucket,
		"region": cfg.Storage.S3.Region,
	}).Debug("s3 writer initialized")
	return w, nil
}

// objectKey partitions uploads by run date.
func (w *S3Writer) objectKey(report *models.Report, filename string) string {
	return fmt.Sprintf("results/date=%s/%s", report.Params.RunDate, filename)
}

// UploadParquet stores an encoded parquet report in the results bucket and
// returns the object key.
func (w *S3Writer) UploadParquet(ctx context.Context, report *models.Report, data []byte) (string, error) {
	key := w.objectKey(report, fmt.Sprintf("opportunities_%s.parquet", report.RunID))
	log := w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"s3_key":    key,
		"data_size": len(data),
	})

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":     "parquet",
			"compression":      w.config.Writer.Parquet.Compression,
			"arbiflow-version": w.config.Arbiflow.Version,
			"run-id":           report.RunID,
		},
	}

	if _, err := w.s3Client.PutObject(context.WithoutCancel(ctx), input); err != nil {
		return "", fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}

	logger.IncrementResultWrite(int64(len(data)))
	log.Info("report uploaded to S3")
	return key, nil
}
