package storage

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"
)

type ossStore struct {
	bucket *oss.Bucket
	prefix string
}

func newOSS(cfg *Config) (*ossStore, error) {
	if err := required(OSS, map[string]string{
		"endpoint":          cfg.Endpoint,
		"bucket-name":       cfg.BucketName,
		"access-key-id":     cfg.AccessKeyID,
		"access-key-secret": cfg.AccessKeySecret,
	}); err != nil {
		return nil, err
	}

	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "oss")
	}
	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, errors.Wrap(err, "oss")
	}
	return &ossStore{bucket: bucket, prefix: keyPrefix(cfg.CustomPath)}, nil
}

func (p *ossStore) SendContent(ctx context.Context, key string, content []byte, modTime time.Time) (string, error) {
	fileKey := p.prefix + key
	opts := []oss.Option{oss.WithContext(ctx)}
	if !modTime.IsZero() {
		opts = append(opts, oss.Meta("modification-time", modTime.Format(time.RFC3339)))
	}
	if err := p.bucket.PutObject(fileKey, bytes.NewReader(content), opts...); err != nil {
		return "", errors.Wrap(err, "oss upload")
	}
	return p.bucket.BucketName + "/" + fileKey, nil
}

func (p *ossStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var (
		objs  []Object
		token string
	)
	for {
		opts := []oss.Option{oss.WithContext(ctx), oss.Prefix(p.prefix + prefix)}
		if token != "" {
			opts = append(opts, oss.ContinuationToken(token))
		}
		res, err := p.bucket.ListObjectsV2(opts...)
		if err != nil {
			return nil, errors.Wrap(err, "oss list")
		}
		for _, o := range res.Objects {
			objs = append(objs, Object{
				Key:     strings.TrimPrefix(o.Key, p.prefix),
				Size:    o.Size,
				ModTime: o.LastModified,
			})
		}
		if !res.IsTruncated {
			return objs, nil
		}
		token = res.NextContinuationToken
	}
}

func (p *ossStore) Delete(ctx context.Context, key string) error {
	return errors.Wrap(p.bucket.DeleteObject(p.prefix+key, oss.WithContext(ctx)), "oss delete")
}
