package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// s3Store serves AWS S3 and the S3 compatible Cloudflare R2 and MinIO
// s3Store 同时服务 AWS S3 以及兼容 S3 的 Cloudflare R2、MinIO
type s3Store struct {
	client   *s3.Client
	uploader *transfermanager.Client
	bucket   string
	prefix   string
}

func newS3(cfg *Config) (*s3Store, error) {
	backend := cfg.Type
	fields := map[string]string{
		"bucket-name":       cfg.BucketName,
		"access-key-id":     cfg.AccessKeyID,
		"access-key-secret": cfg.AccessKeySecret,
	}

	endpoint, region, pathStyle := cfg.Endpoint, cfg.Region, false
	switch backend {
	case R2:
		fields["account-id"] = cfg.AccountID
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
		region = "auto"
	case MinIO:
		fields["endpoint"] = cfg.Endpoint
		pathStyle = true
	}
	if err := required(backend, fields); err != nil {
		return nil, err
	}
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, errors.Wrap(err, backend)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &s3Store{
		client:   client,
		uploader: transfermanager.New(client),
		bucket:   cfg.BucketName,
		prefix:   keyPrefix(cfg.CustomPath),
	}, nil
}

func (p *s3Store) SendContent(ctx context.Context, key string, content []byte, modTime time.Time) (string, error) {
	fileKey := p.prefix + key
	input := &transfermanager.UploadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(fileKey),
		Body:   bytes.NewReader(content),
	}
	if !modTime.IsZero() {
		input.Metadata = map[string]string{
			"modification-time": modTime.Format(time.RFC3339),
		}
	}

	if _, err := p.uploader.UploadObject(ctx, input); err != nil {
		return "", errors.Wrap(err, "s3 upload")
	}
	return p.bucket + "/" + fileKey, nil
}

func (p *s3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	pager := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.prefix + prefix),
	})

	var objs []Object
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "s3 list")
		}
		for _, o := range page.Contents {
			objs = append(objs, Object{
				Key:     strings.TrimPrefix(aws.ToString(o.Key), p.prefix),
				Size:    aws.ToInt64(o.Size),
				ModTime: aws.ToTime(o.LastModified),
			})
		}
	}
	return objs, nil
}

func (p *s3Store) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.prefix + key),
	})
	return errors.Wrap(err, "s3 delete")
}
