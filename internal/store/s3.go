package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"gwi.com/onboarding-backend/internal/config"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps documents as objects named <prefix>/<namespace>/<key>.json in one bucket.
// It works against AWS S3 and S3-compatible stores such as Cloudflare R2.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) Name() string { return "s3" }

func (s *S3Store) Close() error { return nil }

func (s *S3Store) dir(ns Namespace) string {
	return path.Join(s.prefix, string(ns)) + "/"
}

func (s *S3Store) objectKey(ns Namespace, key string) string {
	return s.dir(ns) + key + fileExt
}

func (s *S3Store) Put(ctx context.Context, ns Namespace, key string, doc any) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", ns, key, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(ns, key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload document %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, ns Namespace, key string, out any) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return &NotFoundError{Namespace: ns, Key: key}
	}
	data, err := s.read(ctx, s.objectKey(ns, key))
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return &NotFoundError{Namespace: ns, Key: key}
		}
		return fmt.Errorf("failed to download document %s/%s: %w", ns, key, err)
	}
	return Entry{Key: key, Document: data}.Decode(out)
}

func (s *S3Store) read(ctx context.Context, objectKey string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) List(ctx context.Context, ns Namespace) ([]Entry, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	dir := s.dir(ns)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir),
	})

	var entries []Entry
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", ns, err)
		}
		for _, obj := range page.Contents {
			objectKey := aws.ToString(obj.Key)
			name := strings.TrimPrefix(objectKey, dir)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, fileExt) {
				continue
			}
			data, err := s.read(ctx, objectKey)
			if err != nil {
				var noKey *types.NoSuchKey
				if errors.As(err, &noKey) {
					continue
				}
				return nil, fmt.Errorf("failed to download %s: %w", objectKey, err)
			}
			if !json.Valid(data) {
				continue
			}
			entries = append(entries, Entry{Key: strings.TrimSuffix(name, fileExt), Document: data})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *S3Store) FindByField(ctx context.Context, ns Namespace, field, value string) (*Entry, error) {
	entries, err := s.List(ctx, ns)
	if err != nil {
		return nil, err
	}
	return findByField(entries, field, value), nil
}
