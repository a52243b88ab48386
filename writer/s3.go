package writer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "optionflow/config"
)

// s3Uploader puts finished parquet files into the configured bucket.
type s3Uploader struct {
	client *s3.Client
	bucket string
}

func newS3Uploader(cfg *appconfig.Config) (*s3Uploader, error) {
	ctx := context.Background()
	storage := cfg.Storage.S3

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(storage.Region)}
	if storage.AccessKeyID != "" && storage.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				storage.AccessKeyID,
				storage.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	return &s3Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: storage.Bucket,
	}, nil
}

func (u *s3Uploader) upload(ctx context.Context, key string, body []byte) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/octet-stream"),
	})
	return err
}
