package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

var _ BlobStore = (*S3Store)(nil)

// s3Client - подмножество клиента S3, используемое хранилищем.
type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store сохраняет файлы в бакет S3 и раздаёт их по публичному URL
// бакета (или CDN перед ним).
type S3Store struct {
	client        s3Client
	bucket        string
	publicBaseURL string
	logger        *zap.Logger
}

// S3Config - конфигурация S3-хранилища.
type S3Config struct {
	Bucket        string
	Region        string
	PublicBaseURL string
}

// NewS3Store создает хранилище поверх стандартной цепочки AWS-кредов.
func NewS3Store(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	publicBaseURL := cfg.PublicBaseURL
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3Store{
		client:        s3.NewFromConfig(awsCfg),
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        logger.Named("S3Store"),
	}, nil
}

// NewS3StoreWithClient используется в тестах.
func NewS3StoreWithClient(client s3Client, bucket, publicBaseURL string, logger *zap.Logger) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        logger.Named("S3Store"),
	}
}

// Put загружает объект и возвращает его публичный URL.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrBlobSaveFailed)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		s.logger.Error("Failed to put object to S3", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrBlobSaveFailed, err)
	}

	url := s.publicBaseURL + "/" + key
	s.logger.Debug("Blob uploaded to S3", zap.String("key", key), zap.Int("size_bytes", len(data)))
	return url, nil
}
