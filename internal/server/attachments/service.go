// Package attachments issues presigned S3 URLs for task attachment files.
// The client uploads and downloads directly against the object store; the
// server never proxies file bytes.
package attachments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sc "github.com/KossiPascal/atlas-kanban/internal/server/config"
)

// ErrInvalidKey rejects empty or path-escaping storage keys.
var ErrInvalidKey = errors.New("invalid storage key")

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

const urlValidity = 15 * time.Minute

// Service presigns PUT and GET URLs against the configured bucket.
type Service struct {
	config *sc.Config
}

// NewService constructs the presign service.
func NewService(config *sc.Config) *Service {
	return &Service{config: config}
}

// validKey rejects empty and path-escaping storage keys before they reach the
// object store.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

func (s *Service) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// PresignedPutURL returns a short-lived URL the client can PUT the file at
// key to.
func (s *Service) PresignedPutURL(ctx context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(urlValidity))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// PresignedGetURL returns a short-lived URL the client can download the file
// at key from.
func (s *Service) PresignedGetURL(ctx context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(urlValidity))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
